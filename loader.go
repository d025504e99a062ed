package torm

import (
	"fmt"
	"reflect"
)

// loadRowIntoRecord materializes raw row values into the typed record.
// 字段按需解密并强制转换到语义类型；单个字段失败按字段路由到异常
// 处理器，其余字段尽力完成，符合部分物化语义
func (to *TableOperations[T]) loadRowIntoRecord(row *Record, fields []*FieldMetadata, record *T) error {
	rv := reflect.ValueOf(record).Elem()

	for _, field := range fields {
		raw, ok := row.GetOk(field.Column)
		if !ok {
			continue
		}

		value := raw
		if field.IsEncrypted() && raw != nil {
			plain, err := DecryptField(stringifyValue(raw), field.EncryptionKeyRef)
			if err != nil {
				if routed := to.routeError(fmt.Errorf("torm: decrypt field %s: %w", field.Name, err)); routed != nil {
					return routed
				}
				continue
			}
			value = plain
		}

		coerced, err := coerceValue(value, field.Type)
		if err != nil {
			if routed := to.routeError(fmt.Errorf("torm: assign field %s: %w", field.Name, err)); routed != nil {
				return routed
			}
			continue
		}
		rv.Field(field.Index).Set(coerced)
	}
	return nil
}

// loadRecordFromRow materializes a full typed record from a raw row
func (to *TableOperations[T]) loadRecordFromRow(row *Record) (*T, error) {
	record := new(T)
	if err := to.loadRowIntoRecord(row, to.meta.Fields, record); err != nil {
		return nil, err
	}
	return record, nil
}

// rawFieldValue reads one field's current value from a record,
// dereferencing pointer fields
func (to *TableOperations[T]) rawFieldValue(record *T, field *FieldMetadata) interface{} {
	rv := reflect.ValueOf(record).Elem().Field(field.Index)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil
	}
	return derefPointer(rv.Interface())
}

// setFieldValue writes one field's value onto a record, coercing as needed
func (to *TableOperations[T]) setFieldValue(record *T, field *FieldMetadata, value interface{}) error {
	coerced, err := coerceValue(value, field.Type)
	if err != nil {
		return fmt.Errorf("torm: assign field %s: %w", field.Name, err)
	}
	reflect.ValueOf(record).Elem().Field(field.Index).Set(coerced)
	return nil
}

// interpretValue converts a semantic field value to its storage form:
// 加密字段先加密，有方言类型覆盖的字段包装为 TypedParameter
func (to *TableOperations[T]) interpretValue(field *FieldMetadata, value interface{}) (interface{}, error) {
	if field.IsEncrypted() && value != nil {
		encrypted, err := EncryptField(stringifyValue(value), field.EncryptionKeyRef)
		if err != nil {
			return nil, fmt.Errorf("torm: encrypt field %s: %w", field.Name, err)
		}
		value = encrypted
	}

	if dbType, ok := field.DataTypes[to.dialect]; ok {
		return TypedParameter{Value: value, DBType: dbType}, nil
	}
	return value, nil
}

// interpretedFieldValues extracts the storage-form values of the given
// fields from a record, in field order
func (to *TableOperations[T]) interpretedFieldValues(record *T, fields []*FieldMetadata) ([]interface{}, error) {
	values := make([]interface{}, len(fields))
	for i, field := range fields {
		value, err := to.interpretValue(field, to.rawFieldValue(record, field))
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// ToDataTable materializes typed records into a DataTable using the
// precomputed schema descriptor
func (to *TableOperations[T]) ToDataTable(records []*T) *DataTable {
	table := NewDataTable(to.meta.TableName, to.meta.Schema)
	for _, record := range records {
		row := newRowWithCapacity(len(to.meta.Fields))
		for _, field := range to.meta.Fields {
			row.setDirect(field.Column, to.rawFieldValue(record, field))
		}
		table.AppendRow(row)
	}
	return table
}
