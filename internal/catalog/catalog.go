// Package catalog holds typed Postgres catalog records and the loader that reads them from pg_catalog.
// Records are immutable once a Catalog has been constructed.
package catalog

import "sort"

// Modifier is a per-column type refinement (atttypmod). NoModifier is the default key.
type Modifier int32

// NoModifier is the sentinel for "no type modifier".
const NoModifier Modifier = -1

// TypeKind mirrors pg_type.typtype.
type TypeKind byte

const (
	KindBase       TypeKind = 'b'
	KindComposite  TypeKind = 'c'
	KindDomain     TypeKind = 'd'
	KindEnum       TypeKind = 'e'
	KindPseudo     TypeKind = 'p'
	KindRange      TypeKind = 'r'
	KindMultirange TypeKind = 'm'
)

// Category mirrors pg_type.typcategory.
type Category byte

const (
	CategoryArray     Category = 'A'
	CategoryBoolean   Category = 'B'
	CategoryComposite Category = 'C'
	CategoryDateTime  Category = 'D'
	CategoryNumeric   Category = 'N'
	CategoryString    Category = 'S'
	CategoryUser      Category = 'U'
)

// ClassKind mirrors pg_class.relkind.
type ClassKind byte

const (
	ClassTable            ClassKind = 'r'
	ClassView             ClassKind = 'v'
	ClassMaterializedView ClassKind = 'm'
	ClassCompositeType    ClassKind = 'c'
	ClassForeignTable     ClassKind = 'f'
	ClassPartitionedTable ClassKind = 'p'
)

// ConstraintType mirrors pg_constraint.contype for the kinds we care about.
type ConstraintType byte

const (
	ConstraintPrimaryKey ConstraintType = 'p'
	ConstraintUnique     ConstraintType = 'u'
	ConstraintForeignKey ConstraintType = 'f'
)

// Volatility mirrors pg_proc.provolatile.
type Volatility byte

const (
	VolatilityImmutable Volatility = 'i'
	VolatilityStable    Volatility = 's'
	VolatilityVolatile  Volatility = 'v'
)

// VoidTypeID is the oid of the pseudo type "void".
const VoidTypeID uint32 = 2278

// Namespace is a schema.
type Namespace struct {
	ID          uint32
	Name        string
	Description string
}

// Type describes a pg_type row.
type Type struct {
	ID            uint32
	Name          string
	Description   string
	NamespaceID   uint32
	NamespaceName string
	Kind          TypeKind
	Category      Category
	// ClassID is set for composite types (typrelid).
	ClassID uint32
	// ArrayItemTypeID is set for array types (typelem).
	ArrayItemTypeID    uint32
	DomainBaseTypeID   uint32
	DomainTypeModifier Modifier
	RangeSubTypeID     uint32
	EnumVariants       []string
}

// IsArray reports whether the type is an array over ArrayItemTypeID.
func (t *Type) IsArray() bool {
	return t.Category == CategoryArray && t.ArrayItemTypeID != 0
}

// IsDomain reports whether the type is a domain over DomainBaseTypeID.
func (t *Type) IsDomain() bool {
	return t.Kind == KindDomain && t.DomainBaseTypeID != 0
}

// IsRange reports whether the type is a range over RangeSubTypeID.
func (t *Type) IsRange() bool {
	return t.Kind == KindRange && t.RangeSubTypeID != 0
}

// Class describes a relation: table, view, materialized view or standalone composite type.
type Class struct {
	ID            uint32
	Name          string
	Description   string
	NamespaceID   uint32
	NamespaceName string
	TypeID        uint32
	Kind          ClassKind
	IsSelectable  bool
	IsInsertable  bool
	IsUpdatable   bool
	IsDeletable   bool
}

// IsTableLike reports whether rows of the class can be queried directly.
func (c *Class) IsTableLike() bool {
	switch c.Kind {
	case ClassTable, ClassView, ClassMaterializedView, ClassForeignTable, ClassPartitionedTable:
		return true
	}
	return false
}

// Attribute is a column of a class.
type Attribute struct {
	ClassID      uint32
	Num          int16
	Name         string
	Description  string
	TypeID       uint32
	TypeModifier Modifier
	IsNotNull    bool
	HasDefault   bool
}

// Constraint is a primary key, unique or foreign key constraint.
type Constraint struct {
	ID                      uint32
	Name                    string
	Type                    ConstraintType
	ClassID                 uint32
	ForeignClassID          uint32
	KeyAttributeNums        []int16
	ForeignKeyAttributeNums []int16
}

// Procedure is a function in one of the exposed schemas.
type Procedure struct {
	ID             uint32
	Name           string
	Description    string
	NamespaceID    uint32
	NamespaceName  string
	IsStrict       bool
	ReturnsSet     bool
	Volatility     Volatility
	ReturnTypeID   uint32
	ArgTypeIDs     []uint32
	ArgNames       []string
	ArgDefaultsNum int
}

// Extension is an installed extension.
type Extension struct {
	ID            uint32
	Name          string
	NamespaceID   uint32
	NamespaceName string
}

// Records is the raw material a Catalog is indexed from.
type Records struct {
	Namespaces  []*Namespace
	Types       []*Type
	Classes     []*Class
	Attributes  []*Attribute
	Constraints []*Constraint
	Procedures  []*Procedure
	Extensions  []*Extension
}

// Catalog indexes catalog records by id and by owning class.
type Catalog struct {
	records Records

	namespaceByID   map[uint32]*Namespace
	typeByID        map[uint32]*Type
	classByID       map[uint32]*Class
	attrsByClass    map[uint32][]*Attribute
	consByClass     map[uint32][]*Constraint
	foreignByClass  map[uint32][]*Constraint
	extensionByName map[string]*Extension
}

// New indexes the given records.
func New(r Records) *Catalog {
	c := &Catalog{
		records:         r,
		namespaceByID:   make(map[uint32]*Namespace, len(r.Namespaces)),
		typeByID:        make(map[uint32]*Type, len(r.Types)),
		classByID:       make(map[uint32]*Class, len(r.Classes)),
		attrsByClass:    make(map[uint32][]*Attribute),
		consByClass:     make(map[uint32][]*Constraint),
		foreignByClass:  make(map[uint32][]*Constraint),
		extensionByName: make(map[string]*Extension, len(r.Extensions)),
	}
	for _, ns := range r.Namespaces {
		c.namespaceByID[ns.ID] = ns
	}
	for _, t := range r.Types {
		c.typeByID[t.ID] = t
	}
	for _, cl := range r.Classes {
		c.classByID[cl.ID] = cl
	}
	for _, a := range r.Attributes {
		c.attrsByClass[a.ClassID] = append(c.attrsByClass[a.ClassID], a)
	}
	for id := range c.attrsByClass {
		attrs := c.attrsByClass[id]
		sort.Slice(attrs, func(i, j int) bool { return attrs[i].Num < attrs[j].Num })
	}
	for _, con := range r.Constraints {
		c.consByClass[con.ClassID] = append(c.consByClass[con.ClassID], con)
		if con.Type == ConstraintForeignKey {
			c.foreignByClass[con.ForeignClassID] = append(c.foreignByClass[con.ForeignClassID], con)
		}
	}
	for _, ext := range r.Extensions {
		c.extensionByName[ext.Name] = ext
	}
	return c
}

// Type returns the type with the given id.
func (c *Catalog) Type(id uint32) (*Type, bool) {
	t, ok := c.typeByID[id]
	return t, ok
}

// Class returns the class with the given id.
func (c *Catalog) Class(id uint32) (*Class, bool) {
	cl, ok := c.classByID[id]
	return cl, ok
}

// Namespace returns the namespace with the given id.
func (c *Catalog) Namespace(id uint32) (*Namespace, bool) {
	ns, ok := c.namespaceByID[id]
	return ns, ok
}

// Extension returns the installed extension with the given name.
func (c *Catalog) Extension(name string) (*Extension, bool) {
	ext, ok := c.extensionByName[name]
	return ext, ok
}

// Classes returns all classes in load order.
func (c *Catalog) Classes() []*Class { return c.records.Classes }

// Procedures returns all procedures in load order.
func (c *Catalog) Procedures() []*Procedure { return c.records.Procedures }

// Types returns all types in load order.
func (c *Catalog) Types() []*Type { return c.records.Types }

// Attributes returns the columns of a class ordered by attnum.
func (c *Catalog) Attributes(classID uint32) []*Attribute {
	return c.attrsByClass[classID]
}

// Attribute returns a single column of a class by attnum.
func (c *Catalog) Attribute(classID uint32, num int16) (*Attribute, bool) {
	for _, a := range c.attrsByClass[classID] {
		if a.Num == num {
			return a, true
		}
	}
	return nil, false
}

// AttributesByNums resolves attnums to columns, preserving the order of nums.
// It returns false when any attnum is missing.
func (c *Catalog) AttributesByNums(classID uint32, nums []int16) ([]*Attribute, bool) {
	out := make([]*Attribute, 0, len(nums))
	for _, n := range nums {
		a, ok := c.Attribute(classID, n)
		if !ok {
			return nil, false
		}
		out = append(out, a)
	}
	return out, true
}

// Constraints returns the constraints declared on a class.
func (c *Catalog) Constraints(classID uint32) []*Constraint {
	return c.consByClass[classID]
}

// ReferencingConstraints returns foreign keys from other classes that point at classID.
func (c *Catalog) ReferencingConstraints(classID uint32) []*Constraint {
	return c.foreignByClass[classID]
}

// PrimaryKey returns the primary key constraint of a class, if any.
func (c *Catalog) PrimaryKey(classID uint32) (*Constraint, bool) {
	for _, con := range c.consByClass[classID] {
		if con.Type == ConstraintPrimaryKey {
			return con, true
		}
	}
	return nil, false
}

// UniqueConstraints returns primary key and unique constraints, primary key first.
func (c *Catalog) UniqueConstraints(classID uint32) []*Constraint {
	var out []*Constraint
	if pk, ok := c.PrimaryKey(classID); ok {
		out = append(out, pk)
	}
	for _, con := range c.consByClass[classID] {
		if con.Type == ConstraintUnique {
			out = append(out, con)
		}
	}
	return out
}

// IsUniqueKey reports whether nums exactly match a primary key or unique constraint.
func (c *Catalog) IsUniqueKey(classID uint32, nums []int16) bool {
	for _, con := range c.UniqueConstraints(classID) {
		if sameNums(con.KeyAttributeNums, nums) {
			return true
		}
	}
	return false
}

func sameNums(a, b []int16) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int16]int, len(a))
	for _, n := range a {
		seen[n]++
	}
	for _, n := range b {
		if seen[n] == 0 {
			return false
		}
		seen[n]--
	}
	return true
}

// ClassForType returns the class backing a composite type.
func (c *Catalog) ClassForType(typeID uint32) (*Class, bool) {
	t, ok := c.typeByID[typeID]
	if !ok || t.ClassID == 0 {
		return nil, false
	}
	return c.Class(t.ClassID)
}
