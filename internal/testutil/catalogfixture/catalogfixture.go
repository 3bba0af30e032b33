// Package catalogfixture provides a small in-memory catalog shared by unit tests:
//
//	create table app.users (
//	  id serial primary key,
//	  name text not null,
//	  email text unique,
//	  score bigint,
//	  tags text[]
//	);
//	create table app.posts (
//	  id serial primary key,
//	  author_id int not null references app.users,
//	  title text not null,
//	  body text
//	);
//	create function app.users_display_name(u app.users) returns text stable;
//	create function app.search_users(term text) returns setof app.users stable;
//	create function app.user_count() returns bigint stable;
//	create function app.random_numbers(n int) returns setof int stable;
//	create function app.promote_user(user_id int, bonus int default 10) returns app.users volatile;
//	create function app.bump_scores(delta int) returns bigint volatile;
package catalogfixture

import "pg-graphql/internal/catalog"

const (
	NamespacePgCatalog uint32 = 11
	NamespaceApp       uint32 = 2200

	TypeBool        uint32 = 16
	TypeInt8        uint32 = 20
	TypeInt4        uint32 = 23
	TypeText        uint32 = 25
	TypeTextArray   uint32 = 1009
	TypeInt4Array   uint32 = 1007
	TypeNumeric     uint32 = 1700
	TypeTimestamptz uint32 = 1184
	TypeRecord      uint32 = 2249
	TypeVoid        uint32 = 2278

	ClassUsers uint32 = 16400
	TypeUsers  uint32 = 16401
	ClassPosts uint32 = 16410
	TypePosts  uint32 = 16411

	ProcDisplayName   uint32 = 17001
	ProcSearchUsers   uint32 = 17002
	ProcUserCount     uint32 = 17003
	ProcRandomNumbers uint32 = 17004
	ProcPromoteUser   uint32 = 17005
	ProcBumpScores    uint32 = 17006
)

func pgType(id uint32, name string, kind catalog.TypeKind, cat catalog.Category) *catalog.Type {
	return &catalog.Type{ID: id, Name: name, NamespaceID: NamespacePgCatalog, NamespaceName: "pg_catalog", Kind: kind, Category: cat}
}

func rowType(id, classID uint32, name string) *catalog.Type {
	return &catalog.Type{
		ID: id, Name: name, NamespaceID: NamespaceApp, NamespaceName: "app",
		Kind: catalog.KindComposite, Category: catalog.CategoryComposite, ClassID: classID,
	}
}

func table(id, typeID uint32, name string) *catalog.Class {
	return &catalog.Class{
		ID: id, Name: name, NamespaceID: NamespaceApp, NamespaceName: "app", TypeID: typeID, Kind: catalog.ClassTable,
		IsSelectable: true, IsInsertable: true, IsUpdatable: true, IsDeletable: true,
	}
}

func proc(id uint32, name string, vol catalog.Volatility, ret uint32, setof bool, args []uint32, names []string) *catalog.Procedure {
	return &catalog.Procedure{
		ID: id, Name: name, NamespaceID: NamespaceApp, NamespaceName: "app",
		Volatility: vol, ReturnTypeID: ret, ReturnsSet: setof, ArgTypeIDs: args, ArgNames: names,
	}
}

// Records returns fresh catalog records; callers may modify them before indexing.
func Records() catalog.Records {
	textArr := pgType(TypeTextArray, "_text", catalog.KindBase, catalog.CategoryArray)
	textArr.ArrayItemTypeID = TypeText
	int4Arr := pgType(TypeInt4Array, "_int4", catalog.KindBase, catalog.CategoryArray)
	int4Arr.ArrayItemTypeID = TypeInt4

	promote := proc(ProcPromoteUser, "promote_user", catalog.VolatilityVolatile, TypeUsers, false, []uint32{TypeInt4, TypeInt4}, []string{"user_id", "bonus"})
	promote.ArgDefaultsNum = 1

	return catalog.Records{
		Namespaces: []*catalog.Namespace{
			{ID: NamespacePgCatalog, Name: "pg_catalog"},
			{ID: NamespaceApp, Name: "app"},
		},
		Types: []*catalog.Type{
			pgType(TypeBool, "bool", catalog.KindBase, catalog.CategoryBoolean),
			pgType(TypeInt8, "int8", catalog.KindBase, catalog.CategoryNumeric),
			pgType(TypeInt4, "int4", catalog.KindBase, catalog.CategoryNumeric),
			pgType(TypeText, "text", catalog.KindBase, catalog.CategoryString),
			pgType(TypeNumeric, "numeric", catalog.KindBase, catalog.CategoryNumeric),
			pgType(TypeTimestamptz, "timestamptz", catalog.KindBase, catalog.CategoryDateTime),
			pgType(TypeRecord, "record", catalog.KindPseudo, 'P'),
			pgType(TypeVoid, "void", catalog.KindPseudo, 'P'),
			textArr, int4Arr,
			rowType(TypeUsers, ClassUsers, "users"),
			rowType(TypePosts, ClassPosts, "posts"),
		},
		Classes: []*catalog.Class{
			table(ClassUsers, TypeUsers, "users"),
			table(ClassPosts, TypePosts, "posts"),
		},
		Attributes: []*catalog.Attribute{
			{ClassID: ClassUsers, Num: 1, Name: "id", TypeID: TypeInt4, TypeModifier: catalog.NoModifier, IsNotNull: true, HasDefault: true},
			{ClassID: ClassUsers, Num: 2, Name: "name", TypeID: TypeText, TypeModifier: catalog.NoModifier, IsNotNull: true},
			{ClassID: ClassUsers, Num: 3, Name: "email", TypeID: TypeText, TypeModifier: catalog.NoModifier},
			{ClassID: ClassUsers, Num: 4, Name: "score", TypeID: TypeInt8, TypeModifier: catalog.NoModifier},
			{ClassID: ClassUsers, Num: 5, Name: "tags", TypeID: TypeTextArray, TypeModifier: catalog.NoModifier},
			{ClassID: ClassPosts, Num: 1, Name: "id", TypeID: TypeInt4, TypeModifier: catalog.NoModifier, IsNotNull: true, HasDefault: true},
			{ClassID: ClassPosts, Num: 2, Name: "author_id", TypeID: TypeInt4, TypeModifier: catalog.NoModifier, IsNotNull: true},
			{ClassID: ClassPosts, Num: 3, Name: "title", TypeID: TypeText, TypeModifier: catalog.NoModifier, IsNotNull: true},
			{ClassID: ClassPosts, Num: 4, Name: "body", TypeID: TypeText, TypeModifier: catalog.NoModifier},
		},
		Constraints: []*catalog.Constraint{
			{ID: 18001, Name: "users_pkey", Type: catalog.ConstraintPrimaryKey, ClassID: ClassUsers, KeyAttributeNums: []int16{1}},
			{ID: 18002, Name: "users_email_key", Type: catalog.ConstraintUnique, ClassID: ClassUsers, KeyAttributeNums: []int16{3}},
			{ID: 18003, Name: "posts_pkey", Type: catalog.ConstraintPrimaryKey, ClassID: ClassPosts, KeyAttributeNums: []int16{1}},
			{
				ID: 18004, Name: "posts_author_id_fkey", Type: catalog.ConstraintForeignKey,
				ClassID: ClassPosts, KeyAttributeNums: []int16{2},
				ForeignClassID: ClassUsers, ForeignKeyAttributeNums: []int16{1},
			},
		},
		Procedures: []*catalog.Procedure{
			proc(ProcDisplayName, "users_display_name", catalog.VolatilityStable, TypeText, false, []uint32{TypeUsers}, []string{"u"}),
			proc(ProcSearchUsers, "search_users", catalog.VolatilityStable, TypeUsers, true, []uint32{TypeText}, []string{"term"}),
			proc(ProcUserCount, "user_count", catalog.VolatilityStable, TypeInt8, false, nil, nil),
			proc(ProcRandomNumbers, "random_numbers", catalog.VolatilityStable, TypeInt4, true, []uint32{TypeInt4}, []string{"n"}),
			promote,
			proc(ProcBumpScores, "bump_scores", catalog.VolatilityVolatile, TypeInt8, false, []uint32{TypeInt4}, []string{"delta"}),
		},
	}
}

// Catalog indexes Records.
func Catalog() *catalog.Catalog {
	return catalog.New(Records())
}
