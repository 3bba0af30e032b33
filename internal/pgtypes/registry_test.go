package pgtypes

import (
	"errors"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/pgsql"
)

const (
	typeInt4Range  uint32 = 3904
	typeInt4Array  uint32 = 1007
	typeInt8Array  uint32 = 1016
	typeMood       uint32 = 50001
	typeEmail      uint32 = 50002
	typeLoop       uint32 = 50003
	typeMoodArray  uint32 = 50004
	typeRangeArray uint32 = 50005
	typePrice      uint32 = 50006
	typeHstore     uint32 = 50007
	typeGadget     uint32 = 50008
)

func pgType(id uint32, name string, kind catalog.TypeKind, cat catalog.Category) *catalog.Type {
	return &catalog.Type{ID: id, Name: name, NamespaceID: 11, NamespaceName: "pg_catalog", Kind: kind, Category: cat}
}

func appType(id uint32, name string, kind catalog.TypeKind, cat catalog.Category) *catalog.Type {
	t := pgType(id, name, kind, cat)
	t.NamespaceID, t.NamespaceName = 2200, "app"
	return t
}

func testCatalog(withHstore bool) *catalog.Catalog {
	mood := appType(typeMood, "mood", catalog.KindEnum, catalog.CategoryUser)
	mood.EnumVariants = []string{"happy", "sad", "in progress"}
	email := appType(typeEmail, "email", catalog.KindDomain, catalog.CategoryString)
	email.DomainBaseTypeID = OIDText
	loop := appType(typeLoop, "loop", catalog.KindDomain, catalog.CategoryString)
	loop.DomainBaseTypeID = typeLoop
	price := appType(typePrice, "price", catalog.KindDomain, catalog.CategoryNumeric)
	price.DomainBaseTypeID, price.DomainTypeModifier = OIDNumeric, 655366
	int4range := pgType(typeInt4Range, "int4range", catalog.KindRange, catalog.CategoryUser)
	int4range.RangeSubTypeID = OIDInt4
	int4arr := pgType(typeInt4Array, "_int4", catalog.KindBase, catalog.CategoryArray)
	int4arr.ArrayItemTypeID = OIDInt4
	int8arr := pgType(typeInt8Array, "_int8", catalog.KindBase, catalog.CategoryArray)
	int8arr.ArrayItemTypeID = OIDInt8
	moodArr := appType(typeMoodArray, "_mood", catalog.KindBase, catalog.CategoryArray)
	moodArr.ArrayItemTypeID = typeMood
	rangeArr := pgType(typeRangeArray, "_int4range", catalog.KindBase, catalog.CategoryArray)
	rangeArr.ArrayItemTypeID = typeInt4Range

	records := catalog.Records{
		Namespaces: []*catalog.Namespace{{ID: 11, Name: "pg_catalog"}, {ID: 2200, Name: "app"}},
		Types: []*catalog.Type{
			pgType(OIDBool, "bool", catalog.KindBase, catalog.CategoryBoolean),
			pgType(OIDInt4, "int4", catalog.KindBase, catalog.CategoryNumeric),
			pgType(OIDInt8, "int8", catalog.KindBase, catalog.CategoryNumeric),
			pgType(OIDText, "text", catalog.KindBase, catalog.CategoryString),
			pgType(OIDNumeric, "numeric", catalog.KindBase, catalog.CategoryNumeric),
			pgType(OIDMoney, "money", catalog.KindBase, catalog.CategoryNumeric),
			pgType(OIDInterval, "interval", catalog.KindBase, catalog.CategoryDateTime),
			pgType(OIDPoint, "point", catalog.KindBase, 'G'),
			pgType(OIDJSONB, "jsonb", catalog.KindBase, catalog.CategoryUser),
			appType(typeGadget, "gadget", catalog.KindBase, catalog.CategoryUser),
			mood, email, loop, price, int4range, int4arr, int8arr, moodArr, rangeArr,
		},
	}
	if withHstore {
		records.Types = append(records.Types, appType(typeHstore, "hstore", catalog.KindBase, catalog.CategoryUser))
		records.Extensions = []*catalog.Extension{{ID: 1, Name: "hstore", NamespaceID: 2200, NamespaceName: "app"}}
	}
	return catalog.New(records)
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	r, err := New(testCatalog(true), naming.New(naming.DefaultConfig(), nil), opts, nil)
	require.NoError(t, err)
	return r
}

func compile(t *testing.T, frag pgsql.Fragment) (string, []any) {
	t.Helper()
	text, args, err := pgsql.Compile(frag)
	require.NoError(t, err)
	return text, args
}

func TestResolveBuiltinAndCategoryTypes(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())

	cases := map[uint32]string{
		OIDInt4:    "Int",
		OIDInt8:    "BigInt",
		OIDText:    "String",
		OIDBool:    "Boolean",
		OIDNumeric: "BigFloat",
		OIDJSONB:   "JSON",
		typeGadget: "String",
	}
	for id, want := range cases {
		out, err := r.ResolveOutputType(id, catalog.NoModifier, true)
		require.NoError(t, err)
		assert.Equal(t, want, NamedType(out).Name(), "type %d", id)
	}
}

func TestResolveUnknownType(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	_, err := r.ResolveOutputType(99999, catalog.NoModifier, true)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEnumBinding(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	out, err := r.ResolveOutputType(typeMood, catalog.NoModifier, true)
	require.NoError(t, err)
	enum, ok := out.(*graphql.Enum)
	require.True(t, ok)
	assert.Equal(t, "Mood", enum.Name())

	names := map[string]any{}
	for _, v := range enum.Values() {
		names[v.Name] = v.Value
	}
	assert.Equal(t, map[string]any{"HAPPY": "happy", "SAD": "sad", "IN_PROGRESS": "in progress"}, names)

	in, err := r.ResolveInputType(typeMood, catalog.NoModifier)
	require.NoError(t, err)
	assert.Same(t, enum, in)
}

func TestDomainIsAliasOfBase(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	out, err := r.ResolveOutputType(typeEmail, catalog.NoModifier, true)
	require.NoError(t, err)
	assert.Equal(t, "Email", NamedType(out).Name())

	b, ok := r.OutputBinding(typeEmail, catalog.NoModifier)
	require.True(t, ok)
	assert.Equal(t, BindingAlias, b.Kind)
	assert.Same(t, graphql.String, b.Base)

	in, err := r.ResolveInputType(typeEmail, catalog.NoModifier)
	require.NoError(t, err)
	assert.Equal(t, graphql.Type(out), graphql.Type(in))

	got, ok := r.TypeByName("Email")
	require.True(t, ok)
	assert.Equal(t, graphql.Type(out), got)
}

func TestSelfReferentialDomainFailsInsteadOfLooping(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	_, err := r.ResolveOutputType(typeLoop, catalog.NoModifier, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeResolutionTooDeep))
	assert.Contains(t, err.Error(), "processing database type app.loop (type=d)")
}

func TestArrayBindings(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	out, err := r.ResolveOutputType(typeInt4Array, catalog.NoModifier, true)
	require.NoError(t, err)
	list, ok := out.(*graphql.List)
	require.True(t, ok)
	assert.Same(t, graphql.Int, list.OfType)

	in, err := r.ResolveInputType(typeRangeArray, catalog.NoModifier)
	require.NoError(t, err)
	inList, ok := in.(*graphql.List)
	require.True(t, ok)
	assert.Equal(t, "IntRangeInput", NamedType(inList.OfType).Name())
}

func TestLegacyArrayInputUsesOutputType(t *testing.T) {
	r := newTestRegistry(t, Options{ExtendedTypes: true, LegacyArrayInput: true})

	in, err := r.ResolveInputType(typeMoodArray, catalog.NoModifier)
	require.NoError(t, err)
	out, _ := r.ResolveOutputType(typeMoodArray, catalog.NoModifier, true)
	assert.Equal(t, graphql.Type(out), graphql.Type(in))

	// a list of output objects has no input form in legacy mode
	in, err = r.ResolveInputType(typeRangeArray, catalog.NoModifier)
	require.NoError(t, err)
	assert.Nil(t, in)
}

func TestModifierFallsBackToDefaultBinding(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	base, err := r.ResolveOutputType(OIDText, catalog.NoModifier, true)
	require.NoError(t, err)

	out, err := r.ResolveOutputType(OIDText, 20, true)
	require.NoError(t, err)
	assert.Equal(t, graphql.Type(base), graphql.Type(out))
	_, ok := r.OutputBinding(OIDText, 20)
	assert.False(t, ok)
}

func TestOutputGenerator(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	gadget := graphql.NewScalar(graphql.ScalarConfig{Name: "Gadget", Serialize: func(v interface{}) interface{} { return v }})

	var mods []catalog.Modifier
	require.NoError(t, r.RegisterOutputGenerator(typeGadget, func(set func(graphql.Output), mod catalog.Modifier) (graphql.Output, error) {
		mods = append(mods, mod)
		set(gadget)
		return gadget, nil
	}, false))

	out, err := r.ResolveOutputType(typeGadget, 4, true)
	require.NoError(t, err)
	assert.Same(t, gadget, out)
	assert.Equal(t, []catalog.Modifier{4}, mods)

	err = r.RegisterOutputGenerator(typeGadget, nil, false)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
	assert.NoError(t, r.RegisterOutputGenerator(typeGadget, nil, true))
}

func TestOutputGeneratorDisagreement(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	a := graphql.NewScalar(graphql.ScalarConfig{Name: "A", Serialize: func(v interface{}) interface{} { return v }})
	b := graphql.NewScalar(graphql.ScalarConfig{Name: "B", Serialize: func(v interface{}) interface{} { return v }})
	require.NoError(t, r.RegisterOutputGenerator(typeGadget, func(set func(graphql.Output), _ catalog.Modifier) (graphql.Output, error) {
		set(a)
		return b, nil
	}, false))

	_, err := r.ResolveOutputType(typeGadget, catalog.NoModifier, true)
	assert.ErrorContains(t, err, "callback and return types differ")
}

func TestFreeze(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	cached, err := r.ResolveOutputType(OIDInt4, catalog.NoModifier, true)
	require.NoError(t, err)

	r.Freeze()
	assert.True(t, r.Frozen())

	again, err := r.ResolveOutputType(OIDInt4, catalog.NoModifier, true)
	require.NoError(t, err)
	assert.Same(t, cached, again)

	_, err = r.ResolveOutputType(OIDText, catalog.NoModifier, true)
	assert.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, r.RegisterCodec(OIDText, Codec{}, false), ErrFrozen)
	assert.ErrorIs(t, r.RegisterTweak(OIDText, tweakToText, true), ErrFrozen)
}

func TestAddTypeRejectsDifferentTypeWithSameName(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	a := graphql.NewObject(graphql.ObjectConfig{Name: "Thing", Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.Int}}})
	b := graphql.NewObject(graphql.ObjectConfig{Name: "Thing", Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.Int}}})
	require.NoError(t, r.AddType(a))
	require.NoError(t, r.AddType(a))
	assert.ErrorIs(t, r.AddType(b), ErrDuplicateRegistration)
}

func TestAddTypeUnwrapsListAndNonNull(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	thing := graphql.NewObject(graphql.ObjectConfig{Name: "Thing", Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.Int}}})
	require.NoError(t, r.AddType(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(thing)))))

	got, ok := r.TypeByName("Thing")
	require.True(t, ok)
	assert.Same(t, thing, got)
	assert.Equal(t, graphql.Type(thing), NamedType(graphql.NewList(thing)))
	assert.Nil(t, NamedType(nil))
}

func TestRegisterHandler(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	assert.ErrorIs(t, r.RegisterHandler(TagEnum, enumHandler{}, false), ErrDuplicateRegistration)

	require.NoError(t, r.RegisterHandler("gadget", gadgetHandler{}, false))
	assert.Equal(t, Tag("gadget"), r.handlers[len(r.handlers)-2].tag)
	assert.Equal(t, TagText, r.handlers[len(r.handlers)-1].tag)

	out, err := r.ResolveOutputType(typeGadget, catalog.NoModifier, true)
	require.NoError(t, err)
	assert.Same(t, graphql.ID, out)
}

type gadgetHandler struct{ baseHandler }

func (gadgetHandler) Accepts(_ *Registry, t *catalog.Type) bool { return t.Name == "gadget" }

func (gadgetHandler) ResolveOutput(*Registry, *catalog.Type, catalog.Modifier) (Binding, error) {
	return Direct(graphql.ID), nil
}

func TestRangeTypes(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	out, err := r.ResolveOutputType(typeInt4Range, catalog.NoModifier, true)
	require.NoError(t, err)
	obj, ok := out.(*graphql.Object)
	require.True(t, ok)
	assert.Equal(t, "IntRange", obj.Name())
	assert.Contains(t, obj.Fields(), "start")
	assert.Contains(t, obj.Fields(), "end")

	in, err := r.ResolveInputType(typeInt4Range, catalog.NoModifier)
	require.NoError(t, err)
	assert.Equal(t, "IntRangeInput", NamedType(in).Name())

	_, ok = r.TypeByName("IntRangeBound")
	assert.True(t, ok)
}

func TestHstoreMapsToKeyValueHash(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	out, err := r.ResolveOutputType(typeHstore, catalog.NoModifier, true)
	require.NoError(t, err)
	assert.Equal(t, "KeyValueHash", NamedType(out).Name())

	skipped := newTestRegistry(t, Options{SkipHstore: true})
	out, err = skipped.ResolveOutputType(typeHstore, catalog.NoModifier, true)
	require.NoError(t, err)
	assert.Same(t, graphql.String, out)
}
