// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

// DataService command payloads. Creatio expresses record selection as
// filter-expression trees; only the single "Id equals" filter is needed.

// Operation types as the tracker has always sent them; the command is
// identified by the endpoint, not by this field.
const (
	operationSelect = 0
	operationInsert = 0
	operationUpdate = 1

	filterTypeCompare = 1
	comparisonEqual   = 3

	expressionColumn    = 0
	expressionParameter = 2

	dataValueGUID = 0
)

type insertQuery struct {
	RootSchemaName string                 `json:"rootSchemaName"`
	OperationType  int                    `json:"operationType"`
	ColumnValues   map[string]interface{} `json:"columnValues"`
}

type updateQuery struct {
	RootSchemaName string                 `json:"rootSchemaName"`
	OperationType  int                    `json:"operationType"`
	ColumnValues   map[string]interface{} `json:"columnValues"`
	Filters        filterExpression       `json:"filters"`
}

type selectQuery struct {
	RootSchemaName string           `json:"rootSchemaName"`
	OperationType  int              `json:"operationType"`
	Columns        selectColumns    `json:"columns"`
	Filters        filterExpression `json:"filters"`
}

type selectColumns struct {
	Items map[string]selectColumn `json:"items"`
}

type selectColumn struct {
	Expression columnExpression `json:"expression"`
}

type columnExpression struct {
	ExpressionType int    `json:"expressionType"`
	ColumnPath     string `json:"columnPath"`
}

type filterExpression struct {
	FilterType                  int                 `json:"filterType"`
	ComparisonType              int                 `json:"comparisonType"`
	IsEnabled                   bool                `json:"isEnabled"`
	TrimDateTimeParameterToDate bool                `json:"trimDateTimeParameterToDate"`
	LeftExpression              columnExpression    `json:"leftExpression"`
	RightExpression             parameterExpression `json:"rightExpression"`
}

type parameterExpression struct {
	ExpressionType int            `json:"expressionType"`
	Parameter      parameterValue `json:"parameter"`
}

type parameterValue struct {
	DataValueType int    `json:"dataValueType"`
	Value         string `json:"value"`
}

// dataServiceResponse is the common DataService reply envelope.
type dataServiceResponse struct {
	Success      bool   `json:"success"`
	ID           string `json:"id"`
	RowsAffected int    `json:"rowsAffected"`
	ErrorInfo    *struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	} `json:"errorInfo"`
}

func (r dataServiceResponse) errorMessage() string {
	if r.ErrorInfo != nil && r.ErrorInfo.Message != "" {
		return r.ErrorInfo.Message
	}
	return "unknown error"
}

type selectResponse struct {
	dataServiceResponse
	Rows []map[string]interface{} `json:"rows"`
}

// caseColumns are read by SelectQuery; dotted paths read lookup display names.
var caseColumns = []string{
	"Id", "Subject", "Description", "Symptoms",
	"Status.Name", "Priority.Name", "Category.Name",
	"RegisteredOn", "ModifiedOn",
}

func idFilter(id string) filterExpression {
	return filterExpression{
		FilterType:     filterTypeCompare,
		ComparisonType: comparisonEqual,
		IsEnabled:      true,
		LeftExpression: columnExpression{
			ExpressionType: expressionColumn,
			ColumnPath:     "Id",
		},
		RightExpression: parameterExpression{
			ExpressionType: expressionParameter,
			Parameter:      parameterValue{DataValueType: dataValueGUID, Value: id},
		},
	}
}

func newInsertQuery(schema string, fields map[string]interface{}) insertQuery {
	return insertQuery{RootSchemaName: schema, OperationType: operationInsert, ColumnValues: fields}
}

func newUpdateQuery(schema, id string, fields map[string]interface{}) updateQuery {
	return updateQuery{
		RootSchemaName: schema,
		OperationType:  operationUpdate,
		ColumnValues:   fields,
		Filters:        idFilter(id),
	}
}

func newSelectQuery(schema, id string, columns []string) selectQuery {
	items := make(map[string]selectColumn, len(columns))
	for _, c := range columns {
		items[c] = selectColumn{Expression: columnExpression{ExpressionType: expressionColumn, ColumnPath: c}}
	}
	return selectQuery{
		RootSchemaName: schema,
		OperationType:  operationSelect,
		Columns:        selectColumns{Items: items},
		Filters:        idFilter(id),
	}
}
