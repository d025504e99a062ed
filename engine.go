package torm

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// StringComparison compares two formatted field values for client-side
// sorting of search results
type StringComparison func(a, b string) int

var (
	// CompareOrdinal sorts by ordinal byte order
	CompareOrdinal StringComparison = strings.Compare

	// CompareOrdinalIgnoreCase sorts by ordinal byte order after case folding
	CompareOrdinalIgnoreCase StringComparison = func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	}
)

// primaryKeyCache holds the ordered primary key set of the most recent paged
// query. 同一 (排序字段, 方向, 过滤条件) 的翻页复用缓存，不重新取键集
type primaryKeyCache struct {
	sortField   string
	ascending   bool
	restriction *Restriction
	keys        [][]interface{}
}

func (c *primaryKeyCache) matches(sortField string, ascending bool, restriction *Restriction) bool {
	return c != nil && c.sortField == sortField && c.ascending == ascending &&
		c.restriction.Equal(restriction)
}

// TableOperations is the generic CRUD engine for one record type over one
// executor. 构造时元数据模板按执行器方言固化为最终 SQL；
// 实例内的主键分页缓存不做跨实例同步
type TableOperations[T any] struct {
	executor  Executor
	meta      *TableMetadata
	dialect   DatabaseType
	sql       map[StatementType]string
	tableName string // 方言解析后的表名

	exceptionHandler    ExceptionHandler
	rootRestriction     *Restriction
	applyRootToUpdates  bool
	applyRootToDeletes  bool
	caseSensitiveFields bool
	wildcardChar        byte

	cacheMu  sync.Mutex
	keyCache *primaryKeyCache
}

// NewTableOperations creates a table operations engine for record type T.
// customTokens 中的键以 {key} 形式替换进最终 SQL，在方言固化之后进行
func NewTableOperations[T any](executor Executor, customTokens ...map[string]string) (*TableOperations[T], error) {
	if executor == nil {
		return nil, fmt.Errorf("%w: table operations require an executor", ErrInvalidConfiguration)
	}
	meta, err := Metadata[T]()
	if err != nil {
		return nil, err
	}

	tokens := make(map[string]string)
	for _, m := range customTokens {
		for key, value := range m {
			tokens[key] = value
		}
	}

	dialect := executor.DatabaseType()
	return &TableOperations[T]{
		executor:           executor,
		meta:               meta,
		dialect:            dialect,
		sql:                meta.finalizeSQL(dialect, tokens),
		tableName:          resolveIdentifier(dialect, meta.TableName, meta.tableEscape),
		rootRestriction:    meta.RootRestriction,
		applyRootToUpdates: meta.ApplyRootToUpdates,
		applyRootToDeletes: meta.ApplyRootToDeletes,
		wildcardChar:       '%',
	}, nil
}

// Metadata returns the immutable metadata descriptor for T
func (to *TableOperations[T]) Metadata() *TableMetadata {
	return to.meta
}

// TableName returns the dialect-resolved table name
func (to *TableOperations[T]) TableName() string {
	return to.tableName
}

// SQL returns the finalized dialect-specific SQL for a statement type
func (to *TableOperations[T]) SQL(statement StatementType) string {
	return to.sql[statement]
}

// SetExceptionHandler installs an execution error sink.
// 安装后执行类错误交给处理器，操作返回哨兵值；配置类错误永远直接返回
func (to *TableOperations[T]) SetExceptionHandler(handler ExceptionHandler) {
	to.exceptionHandler = handler
}

// RootRestriction returns the restriction implicitly combined into queries
func (to *TableOperations[T]) RootRestriction() *Restriction {
	return to.rootRestriction
}

// SetRootRestriction replaces the implicit query restriction, nil clears it
func (to *TableOperations[T]) SetRootRestriction(restriction *Restriction) {
	to.rootRestriction = restriction
	to.ClearPrimaryKeyCache()
}

// SetApplyRootToUpdates controls whether the root restriction also narrows
// restriction-based updates
func (to *TableOperations[T]) SetApplyRootToUpdates(apply bool) {
	to.applyRootToUpdates = apply
}

// SetApplyRootToDeletes controls whether the root restriction also narrows
// restriction-based deletes
func (to *TableOperations[T]) SetApplyRootToDeletes(apply bool) {
	to.applyRootToDeletes = apply
}

// UseCaseSensitiveFieldNames requires exact field name matches in sort and
// search field resolution
func (to *TableOperations[T]) UseCaseSensitiveFieldNames(caseSensitive bool) {
	to.caseSensitiveFields = caseSensitive
}

// SetSearchWildcard declares the wildcard character callers use in LIKE
// search parameters; it is translated to the SQL % wildcard
func (to *TableOperations[T]) SetSearchWildcard(wildcard byte) {
	to.wildcardChar = wildcard
}

// routeError passes execution errors to the installed handler when present.
// 返回 nil 表示错误已被处理，调用方应返回哨兵值
func (to *TableOperations[T]) routeError(err error) error {
	if to.exceptionHandler != nil {
		to.exceptionHandler(err)
		return nil
	}
	return err
}

// withRoot combines the root restriction with a caller restriction
func (to *TableOperations[T]) withRoot(restriction *Restriction) *Restriction {
	return CombineRestrictions("AND", to.rootRestriction, restriction)
}

// columnName returns the dialect-resolved column identifier for a field
func (to *TableOperations[T]) columnName(field *FieldMetadata) string {
	return resolveIdentifier(to.dialect, field.Column, field.escape)
}

// sortExpressionFor resolves a sort field name to an ORDER BY expression.
// 排序扩展优先于默认列排序；未知字段返回 ErrUnknownField，
// 加密字段返回空表达式并交由调用方决定密文排序或本地排序
func (to *TableOperations[T]) sortExpressionFor(name string, ascending bool) (string, *FieldMetadata, error) {
	field := to.meta.FieldByName(name, to.caseSensitiveFields)
	if field != nil && field.IsEncrypted() {
		return "", field, nil
	}
	if extension := to.meta.sortExtensionFor(name); extension != nil {
		expr, err := extension(name, ascending)
		if err != nil {
			return "", field, err
		}
		// 扩展输出直接拼进 ORDER BY，先做注入检查
		if err := validateSafeSQL(expr); err != nil {
			return "", field, err
		}
		return expr, field, nil
	}
	if field == nil {
		return "", nil, fmt.Errorf("%w: sort field %q", ErrUnknownField, name)
	}
	direction := "ASC"
	if !ascending {
		direction = "DESC"
	}
	return to.columnName(field) + " " + direction, field, nil
}

// resolveOrderBy validates and resolves a caller-supplied ORDER BY clause.
// 每个逗号分隔项必须命中已映射字段或排序扩展；空串回退到主键升序。
// 加密字段在此路径下按密文排序，有意义的排序走分页接口的本地排序
func (to *TableOperations[T]) resolveOrderBy(orderBy string) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		return to.defaultOrderBy(), nil
	}

	terms := strings.Split(orderBy, ",")
	resolved := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}

		name, ascending := term, true
		upper := strings.ToUpper(term)
		if strings.HasSuffix(upper, " DESC") {
			name = strings.TrimSpace(term[:len(term)-5])
			ascending = false
		} else if strings.HasSuffix(upper, " ASC") {
			name = strings.TrimSpace(term[:len(term)-4])
		}

		expr, field, err := to.sortExpressionFor(name, ascending)
		if err != nil {
			return "", err
		}
		if expr == "" {
			direction := "ASC"
			if !ascending {
				direction = "DESC"
			}
			expr = to.columnName(field) + " " + direction
		}
		resolved = append(resolved, expr)
	}

	if len(resolved) == 0 {
		return to.defaultOrderBy(), nil
	}
	return strings.Join(resolved, ", "), nil
}

func (to *TableOperations[T]) defaultOrderBy() string {
	columns := make([]string, len(to.meta.PrimaryKeyFields))
	for i, field := range to.meta.PrimaryKeyFields {
		columns[i] = to.columnName(field)
	}
	return strings.Join(columns, ", ")
}

// applyLimit injects a dialect-appropriate row limit into a finalized query
func (to *TableOperations[T]) applyLimit(sqlText string, limit int) string {
	if limit < 1 {
		return sqlText
	}
	switch to.dialect {
	case SQLServer, Access:
		if strings.HasPrefix(strings.ToUpper(sqlText), "SELECT ") {
			return fmt.Sprintf("SELECT TOP %d %s", limit, sqlText[7:])
		}
		return sqlText
	case Oracle:
		return fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %d", sqlText, limit)
	default:
		return fmt.Sprintf("%s LIMIT %d", sqlText, limit)
	}
}

// NewRecord creates a new record with field default value expressions
// applied
func (to *TableOperations[T]) NewRecord() (*T, error) {
	record := new(T)
	for _, field := range to.meta.Fields {
		if field.DefaultValue == nil {
			continue
		}
		value, err := field.DefaultValue()
		if err != nil {
			if routed := to.routeError(fmt.Errorf("torm: default value for field %s: %w", field.Name, err)); routed != nil {
				return nil, routed
			}
			return nil, nil
		}
		if err := to.setFieldValue(record, field, value); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// QueryRecordCount returns the number of records matching the restriction,
// -1 when a handled execution error occurs
func (to *TableOperations[T]) QueryRecordCount(restriction *Restriction) (int64, error) {
	return to.QueryRecordCountContext(context.Background(), restriction)
}

// QueryRecordCountContext is the cancellable variant of QueryRecordCount
func (to *TableOperations[T]) QueryRecordCountContext(ctx context.Context, restriction *Restriction) (int64, error) {
	effective := to.withRoot(restriction)

	sqlText := to.sql[StatementCount]
	var args []interface{}
	if !effective.IsEmpty() {
		where, rendered := renderPlaceholders(effective.FilterText, effective.Parameters)
		sqlText += " WHERE " + where
		args = rendered
	}

	value, err := to.executor.ExecuteScalarContext(ctx, sqlText, args...)
	if err != nil {
		if routed := to.routeError(newExecutionError(err, sqlText, args)); routed != nil {
			return -1, routed
		}
		return -1, nil
	}

	count, err := toInt64(value)
	if err != nil {
		return -1, fmt.Errorf("torm: count query returned a non-numeric value: %w", err)
	}
	return count, nil
}

// QueryRecords returns the records matching the restriction in the given
// order, combined with the root restriction when one is configured.
// limit 小于 1 表示不限制行数；处理过的执行错误返回空切片
func (to *TableOperations[T]) QueryRecords(orderBy string, restriction *Restriction, limit int) ([]*T, error) {
	return to.QueryRecordsContext(context.Background(), orderBy, restriction, limit)
}

// QueryRecordsContext is the cancellable variant of QueryRecords
func (to *TableOperations[T]) QueryRecordsContext(ctx context.Context, orderBy string, restriction *Restriction, limit int) ([]*T, error) {
	orderExpr, err := to.resolveOrderBy(orderBy)
	if err != nil {
		return nil, err
	}

	effective := to.withRoot(restriction)
	var sqlText string
	var args []interface{}
	if effective.IsEmpty() {
		sqlText = formatSQL(to.sql[StatementSelect], orderExpr)
	} else {
		where, rendered := renderPlaceholders(effective.FilterText, effective.Parameters)
		sqlText = formatSQL(to.sql[StatementSelectWhere], where, orderExpr)
		args = rendered
	}
	sqlText = to.applyLimit(sqlText, limit)

	return to.queryRecordsSQL(ctx, sqlText, args)
}

// QueryRecordsWhere is shorthand for a restriction built from filter text
// and positional parameters
func (to *TableOperations[T]) QueryRecordsWhere(filterText string, parameters ...interface{}) ([]*T, error) {
	return to.QueryRecords("", NewRestriction(filterText, parameters...), 0)
}

// QueryRecord returns the first record matching the restriction, nil when
// none matches
func (to *TableOperations[T]) QueryRecord(restriction *Restriction) (*T, error) {
	return to.QueryRecordContext(context.Background(), restriction)
}

// QueryRecordContext is the cancellable variant of QueryRecord
func (to *TableOperations[T]) QueryRecordContext(ctx context.Context, restriction *Restriction) (*T, error) {
	records, err := to.QueryRecordsContext(ctx, "", restriction, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// QueryRecordWhere is shorthand for a restriction built from filter text
// and positional parameters
func (to *TableOperations[T]) QueryRecordWhere(filterText string, parameters ...interface{}) (*T, error) {
	return to.QueryRecord(NewRestriction(filterText, parameters...))
}

// queryRecordsSQL executes a finalized query and materializes typed records
func (to *TableOperations[T]) queryRecordsSQL(ctx context.Context, sqlText string, args []interface{}) ([]*T, error) {
	table, err := to.executor.RetrieveDataContext(ctx, sqlText, args...)
	if err != nil {
		if routed := to.routeError(newExecutionError(err, sqlText, args)); routed != nil {
			return nil, routed
		}
		return []*T{}, nil
	}

	records := make([]*T, 0, table.RowCount())
	for _, row := range table.Rows {
		record, err := to.loadRecordFromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// QueryRecordsPaged returns one page of records sorted by sortField.
// page 从 1 开始计数。键集缓存按 (排序字段, 方向, 过滤条件) 命中，
// 翻页只取当页主键对应的整行；缓存后其他连接删除的行在取行时被跳过
func (to *TableOperations[T]) QueryRecordsPaged(sortField string, ascending bool, page, pageSize int, restriction *Restriction) ([]*T, error) {
	return to.QueryRecordsPagedContext(context.Background(), sortField, ascending, page, pageSize, restriction)
}

// QueryRecordsPagedContext is the cancellable variant of QueryRecordsPaged
func (to *TableOperations[T]) QueryRecordsPagedContext(ctx context.Context, sortField string, ascending bool, page, pageSize int, restriction *Restriction) ([]*T, error) {
	if strings.TrimSpace(sortField) == "" && len(to.meta.PrimaryKeyFields) > 0 {
		sortField = to.meta.PrimaryKeyFields[0].Name
	}
	field := to.meta.FieldByName(sortField, to.caseSensitiveFields)
	if field == nil && to.meta.sortExtensionFor(sortField) == nil {
		return nil, fmt.Errorf("%w: sort field %q", ErrUnknownField, sortField)
	}

	keys, err := to.cachedPrimaryKeys(ctx, sortField, field, ascending, restriction)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return []*T{}, nil
	}
	start := (page - 1) * pageSize
	if start >= len(keys) {
		return []*T{}, nil
	}
	end := min(start+pageSize, len(keys))

	records := make([]*T, 0, end-start)
	for _, key := range keys[start:end] {
		record, err := to.loadRecordFromStorageKeys(ctx, key)
		if err != nil {
			return nil, err
		}
		// 缓存建立后被删除的行取不到整行，跳过
		if record != nil {
			records = append(records, record)
		}
	}
	return records, nil
}

// cachedPrimaryKeys returns the ordered key set for a paged query, reusing
// the per-instance cache when the paging parameters have not changed
func (to *TableOperations[T]) cachedPrimaryKeys(ctx context.Context, sortField string, field *FieldMetadata, ascending bool, restriction *Restriction) ([][]interface{}, error) {
	to.cacheMu.Lock()
	defer to.cacheMu.Unlock()

	if to.keyCache.matches(sortField, ascending, restriction) {
		return to.keyCache.keys, nil
	}

	keys, err := to.fetchPrimaryKeys(ctx, sortField, field, ascending, restriction)
	if err != nil {
		return nil, err
	}
	to.keyCache = &primaryKeyCache{
		sortField:   sortField,
		ascending:   ascending,
		restriction: restriction,
		keys:        keys,
	}
	return keys, nil
}

// fetchPrimaryKeys retrieves the full ordered primary key set for a paged
// query. 加密排序字段无法在数据库端排序，改走本地解密排序路径
func (to *TableOperations[T]) fetchPrimaryKeys(ctx context.Context, sortField string, field *FieldMetadata, ascending bool, restriction *Restriction) ([][]interface{}, error) {
	effective := to.withRoot(restriction)

	if field != nil && field.IsEncrypted() {
		return to.fetchKeysSortedLocally(ctx, field, ascending, effective)
	}

	orderExpr, _, err := to.sortExpressionFor(sortField, ascending)
	if err != nil {
		return nil, err
	}

	var sqlText string
	var args []interface{}
	if effective.IsEmpty() {
		sqlText = formatSQL(to.sql[StatementSelectKeys], orderExpr)
	} else {
		where, rendered := renderPlaceholders(effective.FilterText, effective.Parameters)
		sqlText = formatSQL(to.sql[StatementSelectKeysWhere], where, orderExpr)
		args = rendered
	}

	table, err := to.executor.RetrieveDataContext(ctx, sqlText, args...)
	if err != nil {
		if routed := to.routeError(newExecutionError(err, sqlText, args)); routed != nil {
			return nil, routed
		}
		return [][]interface{}{}, nil
	}

	keys := make([][]interface{}, 0, table.RowCount())
	for _, row := range table.Rows {
		keys = append(keys, to.primaryKeyValuesFromRow(row))
	}
	return keys, nil
}

// fetchKeysSortedLocally retrieves primary keys plus the encrypted sort
// column without a database sort, decrypts the sort values and orders the
// key set in memory
func (to *TableOperations[T]) fetchKeysSortedLocally(ctx context.Context, field *FieldMetadata, ascending bool, effective *Restriction) ([][]interface{}, error) {
	columns := make([]string, 0, len(to.meta.PrimaryKeyFields)+1)
	for _, keyField := range to.meta.PrimaryKeyFields {
		columns = append(columns, to.columnName(keyField))
	}
	columns = append(columns, to.columnName(field))

	sqlText := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), to.tableName)
	var args []interface{}
	if !effective.IsEmpty() {
		where, rendered := renderPlaceholders(effective.FilterText, effective.Parameters)
		sqlText += " WHERE " + where
		args = rendered
	}

	table, err := to.executor.RetrieveDataContext(ctx, sqlText, args...)
	if err != nil {
		if routed := to.routeError(newExecutionError(err, sqlText, args)); routed != nil {
			return nil, routed
		}
		return [][]interface{}{}, nil
	}

	type keyedRow struct {
		key       []interface{}
		sortValue string
	}
	rows := make([]keyedRow, 0, table.RowCount())
	for _, row := range table.Rows {
		entry := keyedRow{key: to.primaryKeyValuesFromRow(row)}
		if cipher := row.Get(field.Column); cipher != nil {
			plain, err := DecryptField(stringifyValue(cipher), field.EncryptionKeyRef)
			if err != nil {
				if routed := to.routeError(fmt.Errorf("torm: decrypt sort field %s: %w", field.Name, err)); routed != nil {
					return nil, routed
				}
				continue
			}
			entry.sortValue = plain
		}
		rows = append(rows, entry)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if ascending {
			return rows[i].sortValue < rows[j].sortValue
		}
		return rows[i].sortValue > rows[j].sortValue
	})

	keys := make([][]interface{}, len(rows))
	for i, row := range rows {
		keys[i] = row.key
	}
	return keys, nil
}

func (to *TableOperations[T]) primaryKeyValuesFromRow(row *Record) []interface{} {
	key := make([]interface{}, len(to.meta.PrimaryKeyFields))
	for i, field := range to.meta.PrimaryKeyFields {
		key[i] = row.Get(field.Column)
	}
	return key
}

// loadRecordFromStorageKeys fetches one full record by primary key values
// already in storage form, nil when the row no longer exists
func (to *TableOperations[T]) loadRecordFromStorageKeys(ctx context.Context, keys []interface{}) (*T, error) {
	sqlText, args := renderPlaceholders(to.sql[StatementSelectRow], keys)
	row, err := to.executor.RetrieveRowContext(ctx, sqlText, args...)
	if err != nil {
		if routed := to.routeError(newExecutionError(err, sqlText, args)); routed != nil {
			return nil, routed
		}
		return nil, nil
	}
	if row == nil {
		return nil, nil
	}
	return to.loadRecordFromRow(row)
}

// LoadRecord fetches one record by primary key values in declaration order,
// nil when no row matches. 键值按正常取值语义解释：加密主键自动加密
func (to *TableOperations[T]) LoadRecord(keys ...interface{}) (*T, error) {
	return to.LoadRecordContext(context.Background(), keys...)
}

// LoadRecordContext is the cancellable variant of LoadRecord
func (to *TableOperations[T]) LoadRecordContext(ctx context.Context, keys ...interface{}) (*T, error) {
	storage, err := to.interpretKeyValues(keys)
	if err != nil {
		return nil, err
	}
	return to.loadRecordFromStorageKeys(ctx, storage)
}

func (to *TableOperations[T]) interpretKeyValues(keys []interface{}) ([]interface{}, error) {
	if len(keys) != len(to.meta.PrimaryKeyFields) {
		return nil, fmt.Errorf("%w: %s expects %d primary key values, got %d",
			ErrInvalidConfiguration, to.meta.TableName, len(to.meta.PrimaryKeyFields), len(keys))
	}
	storage := make([]interface{}, len(keys))
	for i, field := range to.meta.PrimaryKeyFields {
		value, err := to.interpretValue(field, keys[i])
		if err != nil {
			return nil, err
		}
		storage[i] = value
	}
	return storage, nil
}

// AddNewRecord inserts a record, returning the affected row count.
// 自增主键字段不参与插入；处理过的执行错误返回 0
func (to *TableOperations[T]) AddNewRecord(record *T) (int64, error) {
	return to.AddNewRecordContext(context.Background(), record)
}

// AddNewRecordContext is the cancellable variant of AddNewRecord
func (to *TableOperations[T]) AddNewRecordContext(ctx context.Context, record *T) (int64, error) {
	if record == nil {
		return 0, fmt.Errorf("%w: cannot add a nil record", ErrInvalidConfiguration)
	}
	values, err := to.interpretedFieldValues(record, to.meta.InsertFields)
	if err != nil {
		return 0, err
	}
	sqlText, args := renderPlaceholders(to.sql[StatementInsert], values)
	return to.executeMutation(ctx, sqlText, args)
}

// UpdateRecord updates a record located by its primary key values.
// 回退主键模式下所有字段都是定位键，没有可更新字段
func (to *TableOperations[T]) UpdateRecord(record *T) (int64, error) {
	return to.UpdateRecordContext(context.Background(), record)
}

// UpdateRecordContext is the cancellable variant of UpdateRecord
func (to *TableOperations[T]) UpdateRecordContext(ctx context.Context, record *T) (int64, error) {
	if record == nil {
		return 0, fmt.Errorf("%w: cannot update a nil record", ErrInvalidConfiguration)
	}
	if !to.meta.HasDeclaredPrimaryKey {
		return 0, fmt.Errorf("%w: %s has no declared primary key to locate updates", ErrInvalidConfiguration, to.meta.TableName)
	}
	if err := to.applyUpdateExpressions(record); err != nil {
		return 0, err
	}

	setValues, err := to.interpretedFieldValues(record, to.meta.UpdateFields)
	if err != nil {
		return 0, err
	}
	keyValues, err := to.interpretedFieldValues(record, to.meta.PrimaryKeyFields)
	if err != nil {
		return 0, err
	}

	sqlText, args := renderPlaceholders(to.sql[StatementUpdate], append(setValues, keyValues...))
	return to.executeMutation(ctx, sqlText, args)
}

// UpdateRecordWhere updates records matching a restriction with the field
// values of the given record. 空 restriction 回退为主键定位更新；
// 过滤条件的占位符整体偏移 SET 值个数后追加到参数尾部
func (to *TableOperations[T]) UpdateRecordWhere(record *T, restriction *Restriction) (int64, error) {
	return to.UpdateRecordWhereContext(context.Background(), record, restriction)
}

// UpdateRecordWhereContext is the cancellable variant of UpdateRecordWhere
func (to *TableOperations[T]) UpdateRecordWhereContext(ctx context.Context, record *T, restriction *Restriction) (int64, error) {
	if restriction.IsEmpty() {
		return to.UpdateRecordContext(ctx, record)
	}
	if record == nil {
		return 0, fmt.Errorf("%w: cannot update a nil record", ErrInvalidConfiguration)
	}
	if len(to.meta.UpdateFields) == 0 {
		return 0, fmt.Errorf("%w: %s has no updatable fields", ErrInvalidConfiguration, to.meta.TableName)
	}
	if err := to.applyUpdateExpressions(record); err != nil {
		return 0, err
	}

	effective := restriction
	if to.applyRootToUpdates {
		effective = to.withRoot(restriction)
	}

	setValues, err := to.interpretedFieldValues(record, to.meta.UpdateFields)
	if err != nil {
		return 0, err
	}

	combined := to.sql[StatementUpdateWhere] + " WHERE " + shiftPlaceholders(effective.FilterText, len(setValues))
	sqlText, args := renderPlaceholders(combined, append(setValues, effective.Parameters...))
	return to.executeMutation(ctx, sqlText, args)
}

// applyUpdateExpressions evaluates field update value expressions against
// the record before a mutation
func (to *TableOperations[T]) applyUpdateExpressions(record *T) error {
	for _, field := range to.meta.Fields {
		if field.UpdateValue == nil {
			continue
		}
		value, err := field.UpdateValue(record)
		if err != nil {
			return fmt.Errorf("torm: update value for field %s: %w", field.Name, err)
		}
		if err := to.setFieldValue(record, field, value); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecord deletes a record located by its primary key values
func (to *TableOperations[T]) DeleteRecord(record *T) (int64, error) {
	return to.DeleteRecordContext(context.Background(), record)
}

// DeleteRecordContext is the cancellable variant of DeleteRecord
func (to *TableOperations[T]) DeleteRecordContext(ctx context.Context, record *T) (int64, error) {
	if record == nil {
		return 0, fmt.Errorf("%w: cannot delete a nil record", ErrInvalidConfiguration)
	}
	return to.DeleteRecordByKeysContext(ctx, to.GetPrimaryKeys(record)...)
}

// DeleteRecordByKeys deletes a record by primary key values in declaration
// order
func (to *TableOperations[T]) DeleteRecordByKeys(keys ...interface{}) (int64, error) {
	return to.DeleteRecordByKeysContext(context.Background(), keys...)
}

// DeleteRecordByKeysContext is the cancellable variant of DeleteRecordByKeys
func (to *TableOperations[T]) DeleteRecordByKeysContext(ctx context.Context, keys ...interface{}) (int64, error) {
	storage, err := to.interpretKeyValues(keys)
	if err != nil {
		return 0, err
	}
	sqlText, args := renderPlaceholders(to.sql[StatementDelete], storage)
	return to.executeMutation(ctx, sqlText, args)
}

// DeleteRecordWhere deletes records matching a restriction.
// 空 restriction 直接拒绝，避免整表误删
func (to *TableOperations[T]) DeleteRecordWhere(restriction *Restriction) (int64, error) {
	return to.DeleteRecordWhereContext(context.Background(), restriction)
}

// DeleteRecordWhereContext is the cancellable variant of DeleteRecordWhere
func (to *TableOperations[T]) DeleteRecordWhereContext(ctx context.Context, restriction *Restriction) (int64, error) {
	effective := restriction
	if to.applyRootToDeletes {
		effective = to.withRoot(restriction)
	}
	if effective.IsEmpty() {
		return 0, fmt.Errorf("%w: delete requires a non-empty restriction", ErrInvalidConfiguration)
	}

	combined := to.sql[StatementDeleteWhere] + " WHERE " + effective.FilterText
	sqlText, args := renderPlaceholders(combined, effective.Parameters)
	return to.executeMutation(ctx, sqlText, args)
}

// executeMutation runs a mutation statement, routes execution errors and
// invalidates the primary key cache when rows changed
func (to *TableOperations[T]) executeMutation(ctx context.Context, sqlText string, args []interface{}) (int64, error) {
	affected, err := to.executor.ExecuteNonQueryContext(ctx, sqlText, args...)
	if err != nil {
		if routed := to.routeError(newExecutionError(err, sqlText, args)); routed != nil {
			return 0, routed
		}
		return 0, nil
	}
	if affected > 0 {
		to.ClearPrimaryKeyCache()
	}
	return affected, nil
}

// SearchRestriction combines record filters into a single AND restriction.
// 加密字段的过滤器先校验运算符再加密搜索参数；
// 未知字段在生成任何 SQL 之前返回 ErrUnknownField
func (to *TableOperations[T]) SearchRestriction(filters ...*RecordFilter) (*Restriction, error) {
	var restriction *Restriction
	for _, filter := range filters {
		if filter == nil {
			continue
		}

		field := to.meta.FieldByName(filter.FieldName(), to.caseSensitiveFields)
		if field == nil && to.meta.searchExtensionFor(filter.FieldName()) == nil {
			return nil, fmt.Errorf("%w: search field %q", ErrUnknownField, filter.FieldName())
		}

		prepared, err := to.prepareFilter(filter, field)
		if err != nil {
			return nil, err
		}
		part, err := prepared.GenerateRestriction(to.meta)
		if err != nil {
			return nil, err
		}
		restriction = CombineRestrictions("AND", restriction, part)
	}
	return restriction, nil
}

// prepareFilter interprets a filter's search parameter for storage matching:
// wildcard translation for LIKE operators and encryption for encrypted
// fields. 原过滤器不被修改
func (to *TableOperations[T]) prepareFilter(filter *RecordFilter, field *FieldMetadata) (*RecordFilter, error) {
	parameter := filter.SearchParameter
	changed := false

	if (filter.Operator() == "LIKE" || filter.Operator() == "NOT LIKE") && to.wildcardChar != '%' {
		if text, ok := parameter.(string); ok {
			parameter = strings.ReplaceAll(text, string(to.wildcardChar), "%")
			changed = true
		}
	}

	if field != nil && field.IsEncrypted() {
		if !filter.SupportsEncrypted() {
			return nil, fmt.Errorf("%w: operator %s cannot match encrypted field %q",
				ErrUnsupportedOperator, filter.Operator(), filter.FieldName())
		}
		encrypted, err := to.encryptSearchParameter(field, parameter)
		if err != nil {
			return nil, err
		}
		parameter = encrypted
		changed = true
	}

	if !changed {
		return filter, nil
	}
	prepared := &RecordFilter{fieldName: filter.fieldName, operator: filter.operator, SearchParameter: parameter}
	return prepared, nil
}

func (to *TableOperations[T]) encryptSearchParameter(field *FieldMetadata, parameter interface{}) (interface{}, error) {
	if parameter == nil {
		return nil, nil
	}
	kind := reflect.ValueOf(parameter).Kind()
	if kind != reflect.Slice && kind != reflect.Array {
		return EncryptField(stringifyValue(parameter), field.EncryptionKeyRef)
	}
	values := expandSliceParameter(parameter)
	encrypted := make([]interface{}, len(values))
	for i, value := range values {
		cipher, err := EncryptField(stringifyValue(value), field.EncryptionKeyRef)
		if err != nil {
			return nil, err
		}
		encrypted[i] = cipher
	}
	return encrypted, nil
}

// SearchRecords queries the full set of records matching the filters and
// sorts them client-side by the formatted sort field value.
// 搜索路径绕过主键分页缓存
func (to *TableOperations[T]) SearchRecords(sortField string, ascending bool, filters ...*RecordFilter) ([]*T, error) {
	return to.SearchRecordsContext(context.Background(), sortField, ascending, filters...)
}

// SearchRecordsContext is the cancellable variant of SearchRecords
func (to *TableOperations[T]) SearchRecordsContext(ctx context.Context, sortField string, ascending bool, filters ...*RecordFilter) ([]*T, error) {
	return to.SearchRecordsComparedContext(ctx, sortField, ascending, CompareOrdinal, filters...)
}

// SearchRecordsCompared is SearchRecords with a caller-supplied comparison
func (to *TableOperations[T]) SearchRecordsCompared(sortField string, ascending bool, comparison StringComparison, filters ...*RecordFilter) ([]*T, error) {
	return to.SearchRecordsComparedContext(context.Background(), sortField, ascending, comparison, filters...)
}

// SearchRecordsComparedContext is the cancellable variant of
// SearchRecordsCompared
func (to *TableOperations[T]) SearchRecordsComparedContext(ctx context.Context, sortField string, ascending bool, comparison StringComparison, filters ...*RecordFilter) ([]*T, error) {
	var sortFieldMeta *FieldMetadata
	if strings.TrimSpace(sortField) != "" {
		sortFieldMeta = to.meta.FieldByName(sortField, to.caseSensitiveFields)
		if sortFieldMeta == nil && to.meta.sortExtensionFor(sortField) == nil {
			return nil, fmt.Errorf("%w: sort field %q", ErrUnknownField, sortField)
		}
	}

	restriction, err := to.SearchRestriction(filters...)
	if err != nil {
		return nil, err
	}

	records, err := to.QueryRecordsContext(ctx, "", restriction, 0)
	if err != nil {
		return nil, err
	}

	// 排序扩展没有对应的结构体字段时保持服务端默认顺序
	if sortFieldMeta != nil {
		if comparison == nil {
			comparison = CompareOrdinal
		}
		sort.SliceStable(records, func(i, j int) bool {
			a := stringifyValue(to.rawFieldValue(records[i], sortFieldMeta))
			b := stringifyValue(to.rawFieldValue(records[j], sortFieldMeta))
			if ascending {
				return comparison(a, b) < 0
			}
			return comparison(a, b) > 0
		})
	}
	return records, nil
}

// GetPrimaryKeys returns a record's primary key values in declaration order
func (to *TableOperations[T]) GetPrimaryKeys(record *T) []interface{} {
	keys := make([]interface{}, len(to.meta.PrimaryKeyFields))
	for i, field := range to.meta.PrimaryKeyFields {
		keys[i] = to.rawFieldValue(record, field)
	}
	return keys
}

// GetFieldValue returns a record field value by field or column name
func (to *TableOperations[T]) GetFieldValue(record *T, fieldName string) (interface{}, error) {
	field := to.meta.FieldByName(fieldName, to.caseSensitiveFields)
	if field == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, fieldName)
	}
	return to.rawFieldValue(record, field), nil
}

// SetFieldValue assigns a record field value by field or column name
func (to *TableOperations[T]) SetFieldValue(record *T, fieldName string, value interface{}) error {
	field := to.meta.FieldByName(fieldName, to.caseSensitiveFields)
	if field == nil {
		return fmt.Errorf("%w: %q", ErrUnknownField, fieldName)
	}
	return to.setFieldValue(record, field, value)
}

// GetInterpretedFieldValue converts a semantic value to the storage form the
// engine would bind for the named field
func (to *TableOperations[T]) GetInterpretedFieldValue(fieldName string, value interface{}) (interface{}, error) {
	field := to.meta.FieldByName(fieldName, to.caseSensitiveFields)
	if field == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, fieldName)
	}
	return to.interpretValue(field, value)
}

// GetNonPrimaryFieldRecordRestriction builds an AND equality restriction
// over a record's non-key field values. nil 字段值生成 IS NULL 条件；
// 回退主键模式下没有非键字段，返回 nil。
// 加密字段的参数按存储形式加密，而加密带随机 nonce，
// 等值条件只能命中密文完全相同的行
func (to *TableOperations[T]) GetNonPrimaryFieldRecordRestriction(record *T) (*Restriction, error) {
	terms := make([]string, 0, len(to.meta.UpdateFields))
	parameters := make([]interface{}, 0, len(to.meta.UpdateFields))

	for _, field := range to.meta.UpdateFields {
		value := to.rawFieldValue(record, field)
		if value == nil {
			terms = append(terms, to.columnName(field)+" IS NULL")
			continue
		}
		interpreted, err := to.interpretValue(field, value)
		if err != nil {
			return nil, err
		}
		terms = append(terms, fmt.Sprintf("%s={%d}", to.columnName(field), len(parameters)))
		parameters = append(parameters, interpreted)
	}

	if len(terms) == 0 {
		return nil, nil
	}
	return NewRestriction(strings.Join(terms, " AND "), parameters...), nil
}

// ClearPrimaryKeyCache discards the cached paged-query key set
func (to *TableOperations[T]) ClearPrimaryKeyCache() {
	to.cacheMu.Lock()
	to.keyCache = nil
	to.cacheMu.Unlock()
}

// PrimaryKeyCacheSize returns the number of cached keys, -1 when no key set
// is cached
func (to *TableOperations[T]) PrimaryKeyCacheSize() int {
	to.cacheMu.Lock()
	defer to.cacheMu.Unlock()
	if to.keyCache == nil {
		return -1
	}
	return len(to.keyCache.keys)
}
