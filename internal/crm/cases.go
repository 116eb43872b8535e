// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

const (
	caseSchema    = "Case"
	commentEntity = "CaseComment"

	// maxDeltaPages stops a misbehaving next-link chain.
	maxDeltaPages = 1000
)

// ErrRemoteCaseNotFound is returned by GetCase when no remote record has the id.
var ErrRemoteCaseNotFound = errors.New("remote case not found")

// LookupName is a lookup display name on a remote record. OData returns it
// either as a plain string or, when expanded, as an object with a Name.
type LookupName string

// UnmarshalJSON accepts "Name", {"Name": "..."} and null.
func (l *LookupName) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LookupName(s)
		return nil
	}
	var obj struct {
		Name string `json:"Name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("lookup value: %w", err)
	}
	*l = LookupName(obj.Name)
	return nil
}

// RemoteCase is a Case record as read from the CRM. Nil text fields were
// absent from the response.
type RemoteCase struct {
	ID          string     `json:"Id"`
	Subject     *string    `json:"Subject"`
	Description *string    `json:"Description"`
	Symptoms    *string    `json:"Symptoms"`
	Status      LookupName `json:"Status"`
	Priority    LookupName `json:"Priority"`
	Category    LookupName `json:"Category"`
	ModifiedOn  string     `json:"ModifiedOn"`
}

// ModifiedAt parses ModifiedOn; ok is false when it is absent or unparsable.
func (r RemoteCase) ModifiedAt() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, r.ModifiedOn); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Comment is a CaseComment to post on a remote case.
type Comment struct {
	CaseID    string
	Message   string
	CreatedBy string
	CreatedOn time.Time
}

// CaseAPI exposes the Case operations used by synchronization.
type CaseAPI struct {
	exec *Executor
}

// NewCaseAPI creates a CaseAPI over exec.
func NewCaseAPI(exec *Executor) *CaseAPI {
	return &CaseAPI{exec: exec}
}

// CreateCase inserts a Case and returns its remote id.
func (a *CaseAPI) CreateCase(ctx context.Context, fields map[string]interface{}) (string, error) {
	var resp dataServiceResponse
	err := a.exec.Do(ctx, Request{
		Style:     DataService,
		Method:    http.MethodPost,
		Operation: "InsertQuery",
		Body:      newInsertQuery(caseSchema, fields),
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &RemoteRequestError{Operation: "InsertQuery", Method: http.MethodPost, Err: errors.New(resp.errorMessage())}
	}
	if resp.ID == "" {
		return "", &RemoteRequestError{Operation: "InsertQuery", Method: http.MethodPost, Err: errors.New("response carries no record id")}
	}
	return resp.ID, nil
}

// UpdateCase overwrites the given fields of remote case id.
func (a *CaseAPI) UpdateCase(ctx context.Context, id string, fields map[string]interface{}) error {
	var resp dataServiceResponse
	err := a.exec.Do(ctx, Request{
		Style:     DataService,
		Method:    http.MethodPost,
		Operation: "UpdateQuery",
		Body:      newUpdateQuery(caseSchema, id, fields),
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RemoteRequestError{Operation: "UpdateQuery", Method: http.MethodPost, Err: errors.New(resp.errorMessage())}
	}
	return nil
}

// GetCase reads one remote case.
func (a *CaseAPI) GetCase(ctx context.Context, id string) (*RemoteCase, error) {
	var resp selectResponse
	err := a.exec.Do(ctx, Request{
		Style:     DataService,
		Method:    http.MethodPost,
		Operation: "SelectQuery",
		Body:      newSelectQuery(caseSchema, id, caseColumns),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RemoteRequestError{Operation: "SelectQuery", Method: http.MethodPost, Err: errors.New(resp.errorMessage())}
	}
	if len(resp.Rows) == 0 {
		return nil, ErrRemoteCaseNotFound
	}
	rc := remoteCaseFromRow(resp.Rows[0])
	if rc.ID == "" {
		rc.ID = id
	}
	return &rc, nil
}

// AddComment posts a comment on a remote case and returns the comment id.
func (a *CaseAPI) AddComment(ctx context.Context, c Comment) (string, error) {
	body := map[string]interface{}{
		"CaseId":    c.CaseID,
		"Message":   c.Message,
		"CreatedBy": c.CreatedBy,
		"CreatedOn": c.CreatedOn.UTC().Format(time.RFC3339),
	}
	var resp struct {
		ID string `json:"Id"`
	}
	if err := a.exec.Do(ctx, Request{Style: OData, Method: http.MethodPost, Operation: commentEntity, Body: body}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type odataCasePage struct {
	Value    []RemoteCase `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// ListModifiedSince returns remote cases modified after since, or all cases
// when since is nil. OData next links are followed until exhausted.
func (a *CaseAPI) ListModifiedSince(ctx context.Context, since *time.Time) ([]RemoteCase, error) {
	q := url.Values{}
	q.Set("$expand", "Status($select=Name),Priority($select=Name),Category($select=Name)")
	q.Set("$orderby", "ModifiedOn")
	if since != nil {
		q.Set("$filter", ModifiedSinceFilter(*since))
	}

	req := Request{Style: OData, Method: http.MethodGet, Operation: caseSchema, Query: q}
	var all []RemoteCase
	for page := 0; page < maxDeltaPages; page++ {
		var resp odataCasePage
		if err := a.exec.Do(ctx, req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Value...)
		if resp.NextLink == "" {
			return all, nil
		}
		req = Request{Style: OData, Method: http.MethodGet, Operation: caseSchema, RawURL: resp.NextLink}
	}
	return nil, &RemoteRequestError{Operation: caseSchema, Method: http.MethodGet, Err: fmt.Errorf("more than %d result pages", maxDeltaPages)}
}

// ModifiedSinceFilter is the OData filter selecting records modified after t.
// Sub-second precision is dropped, which can only widen the result.
func ModifiedSinceFilter(t time.Time) string {
	return "ModifiedOn gt " + t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ReadOne fetches at most one case id. It is the representative read used
// by connection checks.
func (a *CaseAPI) ReadOne(ctx context.Context) error {
	q := url.Values{}
	q.Set("$top", "1")
	q.Set("$select", "Id")
	var resp struct {
		Value []json.RawMessage `json:"value"`
	}
	return a.exec.Do(ctx, Request{Style: OData, Method: http.MethodGet, Operation: caseSchema, Query: q}, &resp)
}

func remoteCaseFromRow(row map[string]interface{}) RemoteCase {
	str := func(key string) *string {
		v, ok := row[key]
		if !ok || v == nil {
			return nil
		}
		s := fmt.Sprint(v)
		return &s
	}
	name := func(key string) LookupName {
		if s := str(key); s != nil {
			return LookupName(*s)
		}
		return ""
	}

	rc := RemoteCase{
		Subject:     str("Subject"),
		Description: str("Description"),
		Symptoms:    str("Symptoms"),
		Status:      name("Status.Name"),
		Priority:    name("Priority.Name"),
		Category:    name("Category.Name"),
	}
	if id := str("Id"); id != nil {
		rc.ID = *id
	}
	if m := str("ModifiedOn"); m != nil {
		rc.ModifiedOn = *m
	}
	return rc
}
