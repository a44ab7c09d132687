package iotdb

import (
	"fmt"
	"strings"
)

type insertRecordsRequest struct {
	Timestamps       []int64    `json:"timestamps"`
	MeasurementsList [][]string `json:"measurements_list"`
	DataTypesList    [][]string `json:"data_types_list"`
	ValuesList       [][]any    `json:"values_list"`
	IsAligned        bool       `json:"is_aligned"`
	Devices          []string   `json:"devices"`
}

type insertTabletRequest struct {
	Database         string   `json:"database"`
	Table            string   `json:"table"`
	ColumnNames      []string `json:"column_names"`
	ColumnCategories []string `json:"column_catagories"`
	DataTypes        []string `json:"data_types"`
	Timestamps       []int64  `json:"timestamps"`
	Values           [][]any  `json:"values"`
}

type statusResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const columnCategoryField = "FIELD"

func buildInsertRecords(device string, records []Record) (insertRecordsRequest, error) {
	req := insertRecordsRequest{
		Timestamps:       make([]int64, 0, len(records)),
		MeasurementsList: make([][]string, 0, len(records)),
		DataTypesList:    make([][]string, 0, len(records)),
		ValuesList:       make([][]any, 0, len(records)),
		Devices:          make([]string, 0, len(records)),
	}

	for i, record := range records {
		if len(record.Measurements) == 0 {
			return insertRecordsRequest{}, fmt.Errorf("%w: record %d has no measurements", ErrInvalidRecords, i)
		}

		names := make([]string, 0, len(record.Measurements))
		dataTypes := make([]string, 0, len(record.Measurements))
		values := make([]any, 0, len(record.Measurements))
		for _, m := range record.Measurements {
			if m.Name == "" {
				return insertRecordsRequest{}, fmt.Errorf("%w: measurement names must be non-empty", ErrInvalidRecords)
			}
			value, dataType, err := CoerceValue(m.Value)
			if err != nil {
				return insertRecordsRequest{}, err
			}
			names = append(names, m.Name)
			dataTypes = append(dataTypes, dataType)
			values = append(values, value)
		}

		req.Timestamps = append(req.Timestamps, record.Timestamp)
		req.MeasurementsList = append(req.MeasurementsList, names)
		req.DataTypesList = append(req.DataTypesList, dataTypes)
		req.ValuesList = append(req.ValuesList, values)
		req.Devices = append(req.Devices, device)
	}
	return req, nil
}

func buildInsertTablet(database, table string, records []Record) (insertTabletRequest, error) {
	var (
		order     []string
		dataTypes = map[string]string{}
		rows      = make([]map[string]any, 0, len(records))
	)

	for i, record := range records {
		if len(record.Measurements) == 0 {
			return insertTabletRequest{}, fmt.Errorf("%w: record %d has no measurements", ErrInvalidRecords, i)
		}
		row := make(map[string]any, len(record.Measurements))
		for _, m := range record.Measurements {
			if m.Name == "" {
				return insertTabletRequest{}, fmt.Errorf("%w: measurement names must be non-empty", ErrInvalidRecords)
			}
			value, dataType, err := CoerceValue(m.Value)
			if err != nil {
				return insertTabletRequest{}, err
			}
			existing, seen := dataTypes[m.Name]
			if !seen {
				dataTypes[m.Name] = dataType
				order = append(order, m.Name)
			} else if existing != dataType {
				return insertTabletRequest{}, fmt.Errorf("%w: measurement %q uses inconsistent data types: %s vs %s",
					ErrInvalidRecords, m.Name, existing, dataType)
			}
			row[m.Name] = value
		}
		rows = append(rows, row)
	}

	req := insertTabletRequest{
		Database:         database,
		Table:            table,
		ColumnNames:      order,
		ColumnCategories: make([]string, len(order)),
		DataTypes:        make([]string, len(order)),
		Timestamps:       make([]int64, len(records)),
		Values:           make([][]any, len(records)),
	}
	for i, name := range order {
		req.ColumnCategories[i] = columnCategoryField
		req.DataTypes[i] = dataTypes[name]
	}
	for i, record := range records {
		req.Timestamps[i] = record.Timestamp
		values := make([]any, len(order))
		for j, name := range order {
			if value, ok := rows[i][name]; ok {
				values[j] = value
			}
		}
		req.Values[i] = values
	}
	return req, nil
}

func resolveTableName(name, prefix string) (string, error) {
	table := strings.TrimSpace(name)
	if table == "" {
		return "", fmt.Errorf("%w: table name cannot be empty", ErrInvalidRecords)
	}
	if prefix != "" && !strings.HasPrefix(table, prefix) {
		table = prefix + table
	}
	return table, nil
}
