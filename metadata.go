package torm

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// StatementType identifies one of the canonical SQL templates derived for a
// record type
type StatementType int

const (
	// StatementCount is the SELECT COUNT(*) template
	StatementCount StatementType = iota
	// StatementSelect is the ordered select-all template
	StatementSelect
	// StatementSelectWhere is the filtered, ordered select template
	StatementSelectWhere
	// StatementSelectKeys is the ordered primary-key-only select template
	StatementSelectKeys
	// StatementSelectKeysWhere is the filtered primary-key-only template
	StatementSelectKeysWhere
	// StatementSelectRow is the select-by-primary-key template
	StatementSelectRow
	// StatementInsert is the insert template excluding identity fields
	StatementInsert
	// StatementUpdate is the update template with primary-key WHERE clause
	StatementUpdate
	// StatementUpdateWhere is the update template without a WHERE clause,
	// completed at call time from a caller restriction
	StatementUpdateWhere
	// StatementDelete is the delete template with primary-key WHERE clause
	StatementDelete
	// StatementDeleteWhere is the delete template without a WHERE clause
	StatementDeleteWhere
)

// statementTypes lists every template in rendering order
var statementTypes = []StatementType{
	StatementCount, StatementSelect, StatementSelectWhere,
	StatementSelectKeys, StatementSelectKeysWhere, StatementSelectRow,
	StatementInsert, StatementUpdate, StatementUpdateWhere,
	StatementDelete, StatementDeleteWhere,
}

// SQL 模板中标记表名和字段列表位置的成对 token。
// 仅在 Engine 构造阶段消费，最终 SQL 中不会出现
const (
	tableNamePrefixToken = "<tn!"
	tableNameSuffixToken = "!tn>"
	fieldListPrefixToken = "<fl!"
	fieldListSuffixToken = "!fl>"
)

// AmendmentPosition selects which token pair an amendment targets
type AmendmentPosition int

const (
	// AmendTableName injects text around the table-name position
	AmendTableName AmendmentPosition = iota
	// AmendFieldList injects text around the field-list position
	AmendFieldList
)

// Amendment injects vendor-specific text into the canonical templates.
// Dialect 为 AnyDatabase 时对所有方言生效；方言特定的修正优先于通用修正
type Amendment struct {
	Dialect    DatabaseType
	Statements []StatementType // nil 表示作用于所有语句
	Position   AmendmentPosition
	Prefix     string
	Suffix     string
}

// appliesTo reports whether the amendment covers the given statement
func (a *Amendment) appliesTo(statement StatementType) bool {
	if len(a.Statements) == 0 {
		return true
	}
	for _, s := range a.Statements {
		if s == statement {
			return true
		}
	}
	return false
}

// escapeRule describes dialect-escaping requested for one identifier
type escapeRule struct {
	useAnsi  bool
	dialects map[DatabaseType]bool // nil 表示对所有方言生效
}

// applies reports whether the rule covers the given dialect
func (r *escapeRule) applies(d DatabaseType) bool {
	if r == nil {
		return false
	}
	if r.dialects == nil {
		return true
	}
	return r.dialects[d]
}

// SearchExtension replaces default restriction generation for fields matched
// by its registered pattern
type SearchExtension func(filter *RecordFilter) (*Restriction, error)

// SortExtension replaces default sort-expression generation for fields
// matched by its registered pattern
type SortExtension func(fieldName string, ascending bool) (string, error)

type searchExtensionEntry struct {
	pattern *regexp.Regexp
	fn      SearchExtension
}

type sortExtensionEntry struct {
	pattern *regexp.Regexp
	fn      SortExtension
}

// FieldMetadata describes one mapped record field, immutable after
// derivation
type FieldMetadata struct {
	Name             string       // 结构体字段名
	Column           string       // 映射的数据库列名
	Index            int          // 结构体字段序号
	Type             reflect.Type // 字段语义类型
	IsPrimaryKey     bool
	IsIdentity       bool
	EncryptionKeyRef string                  // 空串表示未加密
	DataTypes        map[DatabaseType]string // 方言特定的中间 DB 类型
	escape           *escapeRule
	DefaultValue     ValueExpression
	UpdateValue      UpdateValueExpression
}

// IsEncrypted reports whether the field value is stored encrypted
func (f *FieldMetadata) IsEncrypted() bool {
	return f.EncryptionKeyRef != ""
}

// TableMetadata is the immutable per-type descriptor derived exactly once
type TableMetadata struct {
	RecordType            reflect.Type
	TableName             string
	Fields                []*FieldMetadata // 声明顺序
	PrimaryKeyFields      []*FieldMetadata
	InsertFields          []*FieldMetadata // 不含自增主键
	UpdateFields          []*FieldMetadata // 不含全部主键
	HasDeclaredPrimaryKey bool
	RootRestriction       *Restriction
	ApplyRootToUpdates    bool
	ApplyRootToDeletes    bool
	Schema                []ColumnSchema

	tableEscape      *escapeRule
	amendments       []Amendment
	searchExtensions []searchExtensionEntry
	sortExtensions   []sortExtensionEntry
	templates        map[StatementType]string
	fieldsByLower    map[string]*FieldMetadata
	fieldsExact      map[string]*FieldMetadata
}

// Template returns the neutral (pre-dialect) SQL template for a statement
func (m *TableMetadata) Template(statement StatementType) string {
	return m.templates[statement]
}

// FieldByName resolves a field by struct name or column name.
// 默认大小写不敏感，caseSensitive 为 true 时要求精确匹配
func (m *TableMetadata) FieldByName(name string, caseSensitive bool) *FieldMetadata {
	if caseSensitive {
		return m.fieldsExact[name]
	}
	return m.fieldsByLower[strings.ToLower(name)]
}

// searchExtensionFor returns the first search extension whose pattern
// matches the field name, nil when none match
func (m *TableMetadata) searchExtensionFor(fieldName string) SearchExtension {
	for _, entry := range m.searchExtensions {
		if entry.pattern.MatchString(fieldName) {
			return entry.fn
		}
	}
	return nil
}

// sortExtensionFor returns the first sort extension whose pattern matches
// the field name, nil when none match
func (m *TableMetadata) sortExtensionFor(fieldName string) SortExtension {
	for _, entry := range m.sortExtensions {
		if entry.pattern.MatchString(fieldName) {
			return entry.fn
		}
	}
	return nil
}

// TableConfig is the declarative companion configuration evaluated once at
// registry-population time. 所有配置都会在推导阶段校验，
// 非法配置立即失败而不是推迟到执行时
type TableConfig struct {
	tableName          string
	tableEscape        *escapeRule
	columnOverrides    map[string]string
	primaryKeys        []string
	identityFields     map[string]bool
	encryptedFields    map[string]string
	dataTypes          map[string]map[DatabaseType]string
	fieldEscapes       map[string]*escapeRule
	rootRestriction    *Restriction
	applyRootToUpdates bool
	applyRootToDeletes bool
	amendments         []Amendment
	searchExtensions   []rawSearchExtension
	sortExtensions     []rawSortExtension
	defaultValues      map[string]ValueExpression
	updateValues       map[string]UpdateValueExpression
}

type rawSearchExtension struct {
	pattern string
	fn      SearchExtension
}

type rawSortExtension struct {
	pattern string
	fn      SortExtension
}

// NewTableConfig creates a table configuration for the given table name
func NewTableConfig(tableName string) *TableConfig {
	return &TableConfig{
		tableName:       tableName,
		columnOverrides: make(map[string]string),
		identityFields:  make(map[string]bool),
		encryptedFields: make(map[string]string),
		dataTypes:       make(map[string]map[DatabaseType]string),
		fieldEscapes:    make(map[string]*escapeRule),
		defaultValues:   make(map[string]ValueExpression),
		updateValues:    make(map[string]UpdateValueExpression),
	}
}

// ColumnName overrides the mapped column name of a struct field
func (c *TableConfig) ColumnName(field, column string) *TableConfig {
	c.columnOverrides[field] = column
	return c
}

// PrimaryKey declares the primary-key fields in key order
func (c *TableConfig) PrimaryKey(fields ...string) *TableConfig {
	c.primaryKeys = append(c.primaryKeys, fields...)
	return c
}

// Identity marks a primary-key field as database-assigned (auto increment)
func (c *TableConfig) Identity(field string) *TableConfig {
	c.identityFields[field] = true
	return c
}

// Encrypt marks a string field as encrypted under the named key
func (c *TableConfig) Encrypt(field, keyRef string) *TableConfig {
	c.encryptedFields[field] = keyRef
	return c
}

// FieldDataType declares a dialect-specific intermediate DB type for a field
func (c *TableConfig) FieldDataType(field string, dialect DatabaseType, dbType string) *TableConfig {
	if c.dataTypes[field] == nil {
		c.dataTypes[field] = make(map[DatabaseType]string)
	}
	c.dataTypes[field][dialect] = dbType
	return c
}

// EscapeField requests identifier escaping for a field's column name.
// 不传 dialects 时对所有方言生效
func (c *TableConfig) EscapeField(field string, useAnsiQuotes bool, dialects ...DatabaseType) *TableConfig {
	c.fieldEscapes[field] = newEscapeRule(useAnsiQuotes, dialects)
	return c
}

// EscapeTableName requests identifier escaping for the table name
func (c *TableConfig) EscapeTableName(useAnsiQuotes bool, dialects ...DatabaseType) *TableConfig {
	c.tableEscape = newEscapeRule(useAnsiQuotes, dialects)
	return c
}

// RootRestriction attaches a restriction ANDed into every query issued for
// this type
func (c *TableConfig) RootRestriction(r *Restriction) *TableConfig {
	c.rootRestriction = r
	return c
}

// ApplyRootToUpdates controls whether the root restriction also filters
// update statements
func (c *TableConfig) ApplyRootToUpdates(apply bool) *TableConfig {
	c.applyRootToUpdates = apply
	return c
}

// ApplyRootToDeletes controls whether the root restriction also filters
// delete statements
func (c *TableConfig) ApplyRootToDeletes(apply bool) *TableConfig {
	c.applyRootToDeletes = apply
	return c
}

// Amend registers a vendor-specific SQL text amendment
func (c *TableConfig) Amend(a Amendment) *TableConfig {
	c.amendments = append(c.amendments, a)
	return c
}

// SearchExtension registers a restriction-generation override for fields
// matching the regex pattern. 按注册顺序取第一个匹配
func (c *TableConfig) SearchExtension(pattern string, fn SearchExtension) *TableConfig {
	c.searchExtensions = append(c.searchExtensions, rawSearchExtension{pattern: pattern, fn: fn})
	return c
}

// SortExtension registers a sort-expression override for fields matching
// the regex pattern
func (c *TableConfig) SortExtension(pattern string, fn SortExtension) *TableConfig {
	c.sortExtensions = append(c.sortExtensions, rawSortExtension{pattern: pattern, fn: fn})
	return c
}

// DefaultValue binds a default-value expression evaluated by NewRecord
func (c *TableConfig) DefaultValue(field string, expr ValueExpression) *TableConfig {
	c.defaultValues[field] = expr
	return c
}

// UpdateValue binds an update-time value expression evaluated by
// UpdateRecord before statement rendering
func (c *TableConfig) UpdateValue(field string, expr UpdateValueExpression) *TableConfig {
	c.updateValues[field] = expr
	return c
}

func newEscapeRule(useAnsi bool, dialects []DatabaseType) *escapeRule {
	rule := &escapeRule{useAnsi: useAnsi}
	if len(dialects) > 0 {
		rule.dialects = make(map[DatabaseType]bool, len(dialects))
		for _, d := range dialects {
			rule.dialects[d] = true
		}
	}
	return rule
}

// metadataRegistry 进程级元数据仓库：按记录类型惰性填充，
// 每个类型只推导一次，之后只读
var (
	metadataRegistry sync.Map // reflect.Type -> *TableMetadata
	metadataMu       sync.Mutex
)

// RegisterTable derives and registers table metadata for record type T with
// an explicit configuration. 同一类型重复注册视为配置错误
func RegisterTable[T any](config *TableConfig) (*TableMetadata, error) {
	recordType := reflect.TypeOf((*T)(nil)).Elem()

	metadataMu.Lock()
	defer metadataMu.Unlock()

	if _, exists := metadataRegistry.Load(recordType); exists {
		return nil, fmt.Errorf("%w: type %s is already registered", ErrInvalidConfiguration, recordType)
	}

	meta, err := deriveTableMetadata(recordType, config)
	if err != nil {
		return nil, err
	}
	metadataRegistry.Store(recordType, meta)
	return meta, nil
}

// Metadata returns the table metadata of record type T, deriving it from
// struct tags alone when the type was never explicitly registered
func Metadata[T any]() (*TableMetadata, error) {
	recordType := reflect.TypeOf((*T)(nil)).Elem()

	if cached, ok := metadataRegistry.Load(recordType); ok {
		return cached.(*TableMetadata), nil
	}

	metadataMu.Lock()
	defer metadataMu.Unlock()

	// 双重检查，Metadata 可能被并发调用
	if cached, ok := metadataRegistry.Load(recordType); ok {
		return cached.(*TableMetadata), nil
	}

	meta, err := deriveTableMetadata(recordType, nil)
	if err != nil {
		return nil, err
	}
	metadataRegistry.Store(recordType, meta)
	return meta, nil
}

// deriveTableMetadata reflects over the record type once and builds the
// immutable descriptor with all SQL templates
func deriveTableMetadata(recordType reflect.Type, config *TableConfig) (*TableMetadata, error) {
	if recordType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: record type %s is not a struct", ErrInvalidConfiguration, recordType)
	}

	if config == nil {
		config = NewTableConfig(toSnakeCase(recordType.Name()))
	}
	tableName := config.tableName
	if tableName == "" {
		tableName = toSnakeCase(recordType.Name())
	}
	if err := ValidateIdentifier(tableName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	meta := &TableMetadata{
		RecordType:         recordType,
		TableName:          tableName,
		ApplyRootToUpdates: config.applyRootToUpdates,
		ApplyRootToDeletes: config.applyRootToDeletes,
		RootRestriction:    config.rootRestriction,
		tableEscape:        config.tableEscape,
		amendments:         config.amendments,
		fieldsByLower:      make(map[string]*FieldMetadata),
		fieldsExact:        make(map[string]*FieldMetadata),
	}

	if err := deriveFields(meta, recordType, config); err != nil {
		return nil, err
	}
	if len(meta.Fields) == 0 {
		return nil, fmt.Errorf("%w: type %s has no mapped fields", ErrInvalidConfiguration, recordType)
	}

	partitionFields(meta, config)

	if err := compileExtensions(meta, config); err != nil {
		return nil, err
	}

	renderTemplates(meta)
	buildSchema(meta)

	return meta, nil
}

// deriveFields enumerates the eligible struct fields and applies tag and
// configuration annotations
func deriveFields(meta *TableMetadata, recordType reflect.Type, config *TableConfig) error {
	seenColumns := make(map[string]string)

	for i := 0; i < recordType.NumField(); i++ {
		structField := recordType.Field(i)
		if !structField.IsExported() || structField.Anonymous {
			continue
		}

		column := columnNameFromTag(structField)
		if column == "-" {
			continue
		}
		if override, ok := config.columnOverrides[structField.Name]; ok {
			column = override
		}
		if column == "" {
			column = strings.ToLower(structField.Name)
		}
		if err := ValidateIdentifier(column); err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrInvalidConfiguration, structField.Name, err)
		}

		// 列名重复（包括覆盖映射之后）属于配置错误
		if previous, dup := seenColumns[strings.ToLower(column)]; dup {
			return fmt.Errorf("%w: fields %s and %s map to the same column %q", ErrInvalidConfiguration, previous, structField.Name, column)
		}
		seenColumns[strings.ToLower(column)] = structField.Name

		field := &FieldMetadata{
			Name:   structField.Name,
			Column: column,
			Index:  i,
			Type:   structField.Type,
		}

		parseTormTag(field, structField.Tag.Get("torm"))

		if config.identityFields[structField.Name] {
			field.IsPrimaryKey = true
			field.IsIdentity = true
		}
		if keyRef, ok := config.encryptedFields[structField.Name]; ok {
			field.EncryptionKeyRef = keyRef
		}
		if field.IsEncrypted() && field.Type.Kind() != reflect.String {
			return fmt.Errorf("%w: encrypted field %s must be a string, got %s", ErrInvalidConfiguration, structField.Name, field.Type)
		}
		if types, ok := config.dataTypes[structField.Name]; ok {
			field.DataTypes = types
		}
		if rule, ok := config.fieldEscapes[structField.Name]; ok {
			field.escape = rule
		}
		if expr, ok := config.defaultValues[structField.Name]; ok {
			field.DefaultValue = expr
		}
		if expr, ok := config.updateValues[structField.Name]; ok {
			field.UpdateValue = expr
		}

		meta.Fields = append(meta.Fields, field)
		meta.fieldsExact[field.Name] = field
		meta.fieldsExact[field.Column] = field
		meta.fieldsByLower[strings.ToLower(field.Name)] = field
		meta.fieldsByLower[strings.ToLower(field.Column)] = field
	}

	// 配置中声明的主键必须对应真实字段
	for _, name := range config.primaryKeys {
		field := meta.fieldsByLower[strings.ToLower(name)]
		if field == nil {
			return fmt.Errorf("%w: primary key field %q not found on %s", ErrInvalidConfiguration, name, recordType)
		}
		field.IsPrimaryKey = true
	}
	for name := range config.identityFields {
		if meta.fieldsByLower[strings.ToLower(name)] == nil {
			return fmt.Errorf("%w: identity field %q not found on %s", ErrInvalidConfiguration, name, recordType)
		}
	}
	for name := range config.encryptedFields {
		if meta.fieldsByLower[strings.ToLower(name)] == nil {
			return fmt.Errorf("%w: encrypted field %q not found on %s", ErrInvalidConfiguration, name, recordType)
		}
	}

	return nil
}

// partitionFields computes the primary-key, insert and update field sets.
// 未声明主键时，所有字段按声明顺序视为主键用于行定位，
// 但 select 仍然保持 * 的默认行为
func partitionFields(meta *TableMetadata, config *TableConfig) {
	for _, field := range meta.Fields {
		if field.IsPrimaryKey {
			meta.HasDeclaredPrimaryKey = true
			break
		}
	}

	if !meta.HasDeclaredPrimaryKey {
		meta.PrimaryKeyFields = meta.Fields
	} else {
		// 配置显式声明的主键顺序优先于结构体声明顺序
		if len(config.primaryKeys) > 0 {
			for _, name := range config.primaryKeys {
				meta.PrimaryKeyFields = append(meta.PrimaryKeyFields, meta.fieldsByLower[strings.ToLower(name)])
			}
			for _, field := range meta.Fields {
				if field.IsPrimaryKey && !containsField(meta.PrimaryKeyFields, field) {
					meta.PrimaryKeyFields = append(meta.PrimaryKeyFields, field)
				}
			}
		} else {
			for _, field := range meta.Fields {
				if field.IsPrimaryKey {
					meta.PrimaryKeyFields = append(meta.PrimaryKeyFields, field)
				}
			}
		}
	}

	for _, field := range meta.Fields {
		if !field.IsIdentity {
			meta.InsertFields = append(meta.InsertFields, field)
		}
	}

	// 主键回退模式下 update 集合为空：所有字段都是定位键
	if meta.HasDeclaredPrimaryKey {
		for _, field := range meta.Fields {
			if !field.IsPrimaryKey {
				meta.UpdateFields = append(meta.UpdateFields, field)
			}
		}
	}
}

func containsField(fields []*FieldMetadata, field *FieldMetadata) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// compileExtensions validates and compiles the regex-keyed extension tables
func compileExtensions(meta *TableMetadata, config *TableConfig) error {
	for _, raw := range config.searchExtensions {
		if raw.fn == nil {
			return fmt.Errorf("%w: search extension for pattern %q has a nil function", ErrInvalidConfiguration, raw.pattern)
		}
		pattern, err := regexp.Compile(raw.pattern)
		if err != nil {
			return fmt.Errorf("%w: search extension pattern %q: %v", ErrInvalidConfiguration, raw.pattern, err)
		}
		meta.searchExtensions = append(meta.searchExtensions, searchExtensionEntry{pattern: pattern, fn: raw.fn})
	}
	for _, raw := range config.sortExtensions {
		if raw.fn == nil {
			return fmt.Errorf("%w: sort extension for pattern %q has a nil function", ErrInvalidConfiguration, raw.pattern)
		}
		pattern, err := regexp.Compile(raw.pattern)
		if err != nil {
			return fmt.Errorf("%w: sort extension pattern %q: %v", ErrInvalidConfiguration, raw.pattern, err)
		}
		meta.sortExtensions = append(meta.sortExtensions, sortExtensionEntry{pattern: pattern, fn: raw.fn})
	}
	return nil
}

// renderTemplates renders the canonical SQL templates with neutral escaping
// and the table-name/field-list token pairs
func renderTemplates(meta *TableMetadata) {
	tn := tableNamePrefixToken + neutralIdentifier(meta.TableName, meta.tableEscape) + tableNameSuffixToken

	keyColumns := make([]string, len(meta.PrimaryKeyFields))
	keyFilterTerms := make([]string, len(meta.PrimaryKeyFields))
	for i, field := range meta.PrimaryKeyFields {
		keyColumns[i] = field.neutralColumn()
		keyFilterTerms[i] = fmt.Sprintf("%s={%d}", field.neutralColumn(), i)
	}
	keyFilter := strings.Join(keyFilterTerms, " AND ")
	keyList := fieldListPrefixToken + strings.Join(keyColumns, ", ") + fieldListSuffixToken
	allColumns := fieldListPrefixToken + "*" + fieldListSuffixToken

	insertColumns := make([]string, len(meta.InsertFields))
	insertValues := make([]string, len(meta.InsertFields))
	for i, field := range meta.InsertFields {
		insertColumns[i] = field.neutralColumn()
		insertValues[i] = fmt.Sprintf("{%d}", i)
	}

	assignments := make([]string, len(meta.UpdateFields))
	for i, field := range meta.UpdateFields {
		assignments[i] = fmt.Sprintf("%s={%d}", field.neutralColumn(), i)
	}
	updateKeyTerms := make([]string, len(meta.PrimaryKeyFields))
	for i, field := range meta.PrimaryKeyFields {
		updateKeyTerms[i] = fmt.Sprintf("%s={%d}", field.neutralColumn(), len(meta.UpdateFields)+i)
	}

	meta.templates = map[StatementType]string{
		StatementCount:           fmt.Sprintf("SELECT COUNT(*) FROM %s", tn),
		StatementSelect:          fmt.Sprintf("SELECT %s FROM %s ORDER BY {0}", allColumns, tn),
		StatementSelectWhere:     fmt.Sprintf("SELECT %s FROM %s WHERE {0} ORDER BY {1}", allColumns, tn),
		StatementSelectKeys:      fmt.Sprintf("SELECT %s FROM %s ORDER BY {0}", keyList, tn),
		StatementSelectKeysWhere: fmt.Sprintf("SELECT %s FROM %s WHERE {0} ORDER BY {1}", keyList, tn),
		StatementSelectRow:       fmt.Sprintf("SELECT %s FROM %s WHERE %s", allColumns, tn, keyFilter),
		StatementInsert: fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)", tn,
			fieldListPrefixToken+strings.Join(insertColumns, ", ")+fieldListSuffixToken,
			strings.Join(insertValues, ", ")),
		StatementUpdate: fmt.Sprintf("UPDATE %s SET %s WHERE %s", tn,
			fieldListPrefixToken+strings.Join(assignments, ", ")+fieldListSuffixToken,
			strings.Join(updateKeyTerms, " AND ")),
		StatementUpdateWhere: fmt.Sprintf("UPDATE %s SET %s", tn,
			fieldListPrefixToken+strings.Join(assignments, ", ")+fieldListSuffixToken),
		StatementDelete:      fmt.Sprintf("DELETE FROM %s WHERE %s", tn, keyFilter),
		StatementDeleteWhere: fmt.Sprintf("DELETE FROM %s", tn),
	}
}

// buildSchema builds the DataTable schema descriptor used by
// table-valued materialization
func buildSchema(meta *TableMetadata) {
	meta.Schema = make([]ColumnSchema, len(meta.Fields))
	for i, field := range meta.Fields {
		valueType := field.Type
		nullable := false
		if valueType.Kind() == reflect.Ptr {
			valueType = valueType.Elem()
			nullable = true
		}
		meta.Schema[i] = ColumnSchema{Name: field.Column, ValueType: valueType, Nullable: nullable}
	}
}

// neutralColumn returns the column identifier in its neutral template form:
// double-quoted when any dialect requests escaping, bare otherwise
func (f *FieldMetadata) neutralColumn() string {
	return neutralIdentifier(f.Column, f.escape)
}

func neutralIdentifier(name string, rule *escapeRule) string {
	if rule != nil {
		return `"` + name + `"`
	}
	return name
}

// finalizeSQL resolves the neutral templates for one dialect: escaped
// identifiers, amendments, token removal and caller-supplied token
// substitutions, applied in that order with custom tokens last
func (m *TableMetadata) finalizeSQL(dialect DatabaseType, customTokens map[string]string) map[StatementType]string {
	finalized := make(map[StatementType]string, len(m.templates))

	for _, statement := range statementTypes {
		text := m.templates[statement]

		// 1. 方言修正：方言特定的优先于通用的
		for _, position := range []AmendmentPosition{AmendTableName, AmendFieldList} {
			amendment := m.amendmentFor(dialect, statement, position)
			prefixToken, suffixToken := tableNamePrefixToken, tableNameSuffixToken
			if position == AmendFieldList {
				prefixToken, suffixToken = fieldListPrefixToken, fieldListSuffixToken
			}
			if amendment != nil {
				text = strings.ReplaceAll(text, prefixToken, amendment.Prefix)
				text = strings.ReplaceAll(text, suffixToken, amendment.Suffix)
			} else {
				text = strings.ReplaceAll(text, prefixToken, "")
				text = strings.ReplaceAll(text, suffixToken, "")
			}
		}

		// 2. 标识符：将中性双引号形式替换为方言转义或裸标识符
		if m.tableEscape != nil {
			text = strings.ReplaceAll(text, `"`+m.TableName+`"`, resolveIdentifier(dialect, m.TableName, m.tableEscape))
		}
		for _, field := range m.Fields {
			if field.escape != nil {
				text = strings.ReplaceAll(text, `"`+field.Column+`"`, resolveIdentifier(dialect, field.Column, field.escape))
			}
		}

		// 3. 调用方自定义 token 最后替换
		for key, value := range customTokens {
			text = strings.ReplaceAll(text, "{"+key+"}", value)
		}

		finalized[statement] = text
	}

	return finalized
}

// amendmentFor selects the amendment for one dialect, statement and
// position, preferring dialect-specific entries
func (m *TableMetadata) amendmentFor(dialect DatabaseType, statement StatementType, position AmendmentPosition) *Amendment {
	var fallback *Amendment
	for i := range m.amendments {
		a := &m.amendments[i]
		if a.Position != position || !a.appliesTo(statement) {
			continue
		}
		if a.Dialect == dialect {
			return a
		}
		if a.Dialect == AnyDatabase && fallback == nil {
			fallback = a
		}
	}
	return fallback
}

func resolveIdentifier(dialect DatabaseType, name string, rule *escapeRule) string {
	if rule.applies(dialect) {
		return dialect.EscapeIdentifier(name, rule.useAnsi)
	}
	return name
}

// columnNameFromTag resolves the column tag, falling back to db and json
// tags the way generated models carry them
func columnNameFromTag(field reflect.StructField) string {
	column := field.Tag.Get("column")
	if column == "" {
		column = field.Tag.Get("db")
	}
	if column == "" {
		column = field.Tag.Get("json")
	}
	if idx := strings.Index(column, ","); idx != -1 {
		column = column[:idx]
	}
	return column
}

// parseTormTag applies the torm struct tag annotations:
// pk、identity、encrypt=keyref，逗号分隔
func parseTormTag(field *FieldMetadata, tag string) {
	if tag == "" {
		return
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "pk":
			field.IsPrimaryKey = true
		case part == "identity":
			field.IsPrimaryKey = true
			field.IsIdentity = true
		case strings.HasPrefix(part, "encrypt="):
			field.EncryptionKeyRef = strings.TrimPrefix(part, "encrypt=")
		case part == "encrypt":
			field.EncryptionKeyRef = "default"
		}
	}
}

// formatSQL substitutes {n} slots in a template with rendered text fragments
func formatSQL(template string, args ...string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		index, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil || index < 0 || index >= len(args) {
			return match
		}
		return args[index]
	})
}

// toSnakeCase converts a Go type name to its default table name.
// 连续大写按缩写整体处理：UserID -> user_id
func toSnakeCase(name string) string {
	runes := []rune(name)
	var builder strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && !unicode.IsUpper(runes[i+1]) && runes[i+1] != '_'
			if i > 0 && (prevLower || nextLower) {
				builder.WriteByte('_')
			}
			builder.WriteRune(unicode.ToLower(r))
		} else {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
