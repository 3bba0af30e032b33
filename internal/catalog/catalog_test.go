package catalog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCatalog() *Catalog {
	return New(Records{
		Classes: []*Class{
			{ID: 10, Name: "users", NamespaceName: "app", TypeID: 100, Kind: ClassTable},
			{ID: 11, Name: "posts", NamespaceName: "app", TypeID: 101, Kind: ClassTable},
		},
		Attributes: []*Attribute{
			{ClassID: 10, Num: 2, Name: "email", TypeID: 25},
			{ClassID: 10, Num: 1, Name: "id", TypeID: 23, IsNotNull: true},
			{ClassID: 11, Num: 1, Name: "id", TypeID: 23},
			{ClassID: 11, Num: 2, Name: "author_id", TypeID: 23},
		},
		Constraints: []*Constraint{
			{ID: 1, Type: ConstraintPrimaryKey, ClassID: 10, KeyAttributeNums: []int16{1}},
			{ID: 2, Type: ConstraintUnique, ClassID: 10, KeyAttributeNums: []int16{2}},
			{ID: 3, Type: ConstraintForeignKey, ClassID: 11, ForeignClassID: 10,
				KeyAttributeNums: []int16{2}, ForeignKeyAttributeNums: []int16{1}},
		},
		Types: []*Type{
			{ID: 100, Name: "users", Kind: KindComposite, ClassID: 10},
			{ID: 1007, Name: "_int4", Category: CategoryArray, ArrayItemTypeID: 23},
		},
		Extensions: []*Extension{{ID: 5, Name: "hstore", NamespaceName: "public"}},
	})
}

func TestCatalogIndexes(t *testing.T) {
	c := sampleCatalog()

	attrs := c.Attributes(10)
	require.Len(t, attrs, 2)
	assert.Equal(t, "id", attrs[0].Name)
	assert.Equal(t, "email", attrs[1].Name)

	pk, ok := c.PrimaryKey(10)
	require.True(t, ok)
	assert.Equal(t, []int16{1}, pk.KeyAttributeNums)

	unique := c.UniqueConstraints(10)
	require.Len(t, unique, 2)
	assert.Equal(t, ConstraintPrimaryKey, unique[0].Type)

	refs := c.ReferencingConstraints(10)
	require.Len(t, refs, 1)
	assert.Equal(t, uint32(11), refs[0].ClassID)

	assert.True(t, c.IsUniqueKey(10, []int16{2}))
	assert.False(t, c.IsUniqueKey(11, []int16{2}))

	cl, ok := c.ClassForType(100)
	require.True(t, ok)
	assert.Equal(t, "users", cl.Name)

	arr, ok := c.Type(1007)
	require.True(t, ok)
	assert.True(t, arr.IsArray())

	_, ok = c.Extension("hstore")
	assert.True(t, ok)
	_, ok = c.Extension("postgis")
	assert.False(t, ok)
}

func TestAttributesByNums(t *testing.T) {
	c := sampleCatalog()

	attrs, ok := c.AttributesByNums(10, []int16{2, 1})
	require.True(t, ok)
	assert.Equal(t, "email", attrs[0].Name)
	assert.Equal(t, "id", attrs[1].Name)

	_, ok = c.AttributesByNums(10, []int16{9})
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(namespacesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"oid", "nspname", "description"}).AddRow(2200, "app", ""))
	mock.ExpectQuery(classesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"oid", "relname", "description", "relnamespace", "nspname", "reltype", "relkind",
			"sel", "ins", "upd", "del"}).
			AddRow(10, "users", "Site users", 2200, "app", 100, "r", true, true, true, false))
	mock.ExpectQuery(attributesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"attrelid", "attnum", "attname", "description", "atttypid", "atttypmod", "attnotnull", "atthasdef"}).
			AddRow(10, 1, "id", "", 23, -1, true, true).
			AddRow(10, 2, "price", "", 1700, 655366, false, false))
	mock.ExpectQuery(typesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"oid", "typname", "description", "typnamespace", "nspname", "typtype", "typcategory",
			"typrelid", "typelem", "typbasetype", "typtypmod", "rngsubtype", "labels"}).
			AddRow(23, "int4", "", 11, "pg_catalog", "b", "N", 0, 0, 0, -1, 0, "{}").
			AddRow(300, "mood", "", 2200, "app", "e", "E", 0, 0, 0, -1, 0, "{happy,sad}").
			AddRow(3904, "int4range", "", 11, "pg_catalog", "r", "R", 0, 0, 0, -1, 23, "{}"))
	mock.ExpectQuery(constraintsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"oid", "conname", "contype", "conrelid", "confrelid", "conkey", "confkey"}).
			AddRow(1, "users_pkey", "p", 10, 0, "{1}", "{}"))
	mock.ExpectQuery(proceduresQuery).WillReturnRows(
		sqlmock.NewRows([]string{"oid", "proname", "description", "pronamespace", "nspname", "proisstrict", "proretset",
			"provolatile", "prorettype", "proargtypes", "proargnames", "pronargdefaults"}).
			AddRow(500, "users_full_name", "", 2200, "app", true, false, "s", 25, "{100}", "{u}", 0))
	mock.ExpectQuery(extensionsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"oid", "extname", "extnamespace", "nspname"}))

	cat, err := Load(context.Background(), db, []string{"app"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	users, ok := cat.Class(10)
	require.True(t, ok)
	assert.Equal(t, ClassTable, users.Kind)
	assert.False(t, users.IsDeletable)

	attrs := cat.Attributes(10)
	require.Len(t, attrs, 2)
	assert.Equal(t, Modifier(655366), attrs[1].TypeModifier)

	mood, ok := cat.Type(300)
	require.True(t, ok)
	assert.Equal(t, KindEnum, mood.Kind)
	assert.Equal(t, []string{"happy", "sad"}, mood.EnumVariants)

	rng, ok := cat.Type(3904)
	require.True(t, ok)
	assert.True(t, rng.IsRange())

	pk, ok := cat.PrimaryKey(10)
	require.True(t, ok)
	assert.Equal(t, []int16{1}, pk.KeyAttributeNums)

	procs := cat.Procedures()
	require.Len(t, procs, 1)
	assert.Equal(t, []uint32{100}, procs[0].ArgTypeIDs)
	assert.Equal(t, []string{"u"}, procs[0].ArgNames)
	assert.Equal(t, VolatilityStable, procs[0].Volatility)
}

func TestLoadRequiresSchemas(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = Load(context.Background(), db, nil)
	require.Error(t, err)
}

func TestLoadPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(namespacesQuery).WillReturnError(assert.AnError)

	_, err = Load(context.Background(), db, []string{"app"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load")
}
