package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Queryer provides query access for catalog loading.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const namespacesQuery = `
select nsp.oid, nsp.nspname, coalesce(obj_description(nsp.oid, 'pg_namespace'), '')
from pg_catalog.pg_namespace nsp
where nsp.nspname = any($1)
order by nsp.nspname`

const classesQuery = `
select rel.oid, rel.relname, coalesce(obj_description(rel.oid, 'pg_class'), ''),
	rel.relnamespace, nsp.nspname, rel.reltype, rel.relkind::text,
	has_table_privilege(rel.oid, 'SELECT'),
	has_table_privilege(rel.oid, 'INSERT') and (rel.relkind in ('r', 'p') or (pg_catalog.pg_relation_is_updatable(rel.oid, true) & 8) = 8),
	has_table_privilege(rel.oid, 'UPDATE') and (rel.relkind in ('r', 'p') or (pg_catalog.pg_relation_is_updatable(rel.oid, true) & 4) = 4),
	has_table_privilege(rel.oid, 'DELETE') and (rel.relkind in ('r', 'p') or (pg_catalog.pg_relation_is_updatable(rel.oid, true) & 16) = 16)
from pg_catalog.pg_class rel
join pg_catalog.pg_namespace nsp on nsp.oid = rel.relnamespace
where nsp.nspname = any($1)
and rel.relkind in ('r', 'v', 'm', 'c', 'f', 'p')
and not rel.relispartition
order by nsp.nspname, rel.relname`

const attributesQuery = `
select att.attrelid, att.attnum, att.attname, coalesce(col_description(att.attrelid, att.attnum), ''),
	att.atttypid, att.atttypmod, att.attnotnull, att.atthasdef
from pg_catalog.pg_attribute att
join pg_catalog.pg_class rel on rel.oid = att.attrelid
join pg_catalog.pg_namespace nsp on nsp.oid = rel.relnamespace
where nsp.nspname = any($1)
and rel.relkind in ('r', 'v', 'm', 'c', 'f', 'p')
and att.attnum > 0
and not att.attisdropped
order by att.attrelid, att.attnum`

// Types are loaded from every namespace so that pg_catalog built-ins and
// extension types are resolvable.
const typesQuery = `
select typ.oid, typ.typname, coalesce(obj_description(typ.oid, 'pg_type'), ''),
	typ.typnamespace, nsp.nspname, typ.typtype::text, typ.typcategory::text,
	typ.typrelid, typ.typelem, typ.typbasetype, typ.typtypmod,
	coalesce(rng.rngsubtype, 0),
	coalesce((select array_agg(enm.enumlabel order by enm.enumsortorder)
		from pg_catalog.pg_enum enm where enm.enumtypid = typ.oid), '{}')::text
from pg_catalog.pg_type typ
join pg_catalog.pg_namespace nsp on nsp.oid = typ.typnamespace
left join pg_catalog.pg_range rng on rng.rngtypid = typ.oid
where nsp.nspname not in ('pg_toast', 'information_schema')
order by typ.oid`

const constraintsQuery = `
select con.oid, con.conname, con.contype::text, con.conrelid, con.confrelid,
	con.conkey::text, coalesce(con.confkey, '{}')::text
from pg_catalog.pg_constraint con
join pg_catalog.pg_class rel on rel.oid = con.conrelid
join pg_catalog.pg_namespace nsp on nsp.oid = rel.relnamespace
where nsp.nspname = any($1)
and con.contype in ('p', 'u', 'f')
order by con.conrelid, con.conname`

// Only functions without OUT/INOUT/VARIADIC arguments are loaded.
const proceduresQuery = `
select pro.oid, pro.proname, coalesce(obj_description(pro.oid, 'pg_proc'), ''),
	pro.pronamespace, nsp.nspname, pro.proisstrict, pro.proretset, pro.provolatile::text,
	pro.prorettype, pro.proargtypes::oid[]::text, coalesce(pro.proargnames, '{}')::text, pro.pronargdefaults
from pg_catalog.pg_proc pro
join pg_catalog.pg_namespace nsp on nsp.oid = pro.pronamespace
where nsp.nspname = any($1)
and pro.prokind = 'f'
and pro.proargmodes is null
order by nsp.nspname, pro.proname, pro.oid`

const extensionsQuery = `
select ext.oid, ext.extname, ext.extnamespace, nsp.nspname
from pg_catalog.pg_extension ext
join pg_catalog.pg_namespace nsp on nsp.oid = ext.extnamespace
order by ext.extname`

// Load reads the catalog for the given schemas. Independent catalog queries run concurrently.
func Load(ctx context.Context, db Queryer, schemas []string) (*Catalog, error) {
	ctx, span := startSpan(ctx, "catalog.load",
		attribute.StringSlice("db.schemas", schemas),
	)
	defer span.End()

	if len(schemas) == 0 {
		err := fmt.Errorf("at least one schema is required")
		recordSpanError(span, err)
		return nil, err
	}

	var r Records
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		r.Namespaces, err = loadNamespaces(egCtx, db, schemas)
		return wrapLoadError("namespaces", err)
	})
	eg.Go(func() (err error) {
		r.Classes, err = loadClasses(egCtx, db, schemas)
		return wrapLoadError("classes", err)
	})
	eg.Go(func() (err error) {
		r.Attributes, err = loadAttributes(egCtx, db, schemas)
		return wrapLoadError("attributes", err)
	})
	eg.Go(func() (err error) {
		r.Types, err = loadTypes(egCtx, db)
		return wrapLoadError("types", err)
	})
	eg.Go(func() (err error) {
		r.Constraints, err = loadConstraints(egCtx, db, schemas)
		return wrapLoadError("constraints", err)
	})
	eg.Go(func() (err error) {
		r.Procedures, err = loadProcedures(egCtx, db, schemas)
		return wrapLoadError("procedures", err)
	})
	eg.Go(func() (err error) {
		r.Extensions, err = loadExtensions(egCtx, db)
		return wrapLoadError("extensions", err)
	})
	if err := eg.Wait(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("catalog.classes", len(r.Classes)),
		attribute.Int("catalog.types", len(r.Types)),
		attribute.Int("catalog.procedures", len(r.Procedures)),
	)
	return New(r), nil
}

func wrapLoadError(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// queryRows runs query and calls scan for every row.
func queryRows(ctx context.Context, db Queryer, name, query string, scan func(*sql.Rows) error, args ...any) error {
	ctx, span := startSpan(ctx, "catalog."+name)
	defer span.End()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		if err := scan(rows); err != nil {
			recordSpanError(span, err)
			return err
		}
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

func loadNamespaces(ctx context.Context, db Queryer, schemas []string) ([]*Namespace, error) {
	var out []*Namespace
	err := queryRows(ctx, db, "namespaces", namespacesQuery, func(rows *sql.Rows) error {
		ns := &Namespace{}
		if err := rows.Scan(&ns.ID, &ns.Name, &ns.Description); err != nil {
			return err
		}
		out = append(out, ns)
		return nil
	}, pq.Array(schemas))
	return out, err
}

func loadClasses(ctx context.Context, db Queryer, schemas []string) ([]*Class, error) {
	var out []*Class
	err := queryRows(ctx, db, "classes", classesQuery, func(rows *sql.Rows) error {
		cl := &Class{}
		var kind string
		if err := rows.Scan(&cl.ID, &cl.Name, &cl.Description, &cl.NamespaceID, &cl.NamespaceName,
			&cl.TypeID, &kind, &cl.IsSelectable, &cl.IsInsertable, &cl.IsUpdatable, &cl.IsDeletable); err != nil {
			return err
		}
		cl.Kind = ClassKind(firstByte(kind))
		out = append(out, cl)
		return nil
	}, pq.Array(schemas))
	return out, err
}

func loadAttributes(ctx context.Context, db Queryer, schemas []string) ([]*Attribute, error) {
	var out []*Attribute
	err := queryRows(ctx, db, "attributes", attributesQuery, func(rows *sql.Rows) error {
		a := &Attribute{}
		var mod int32
		if err := rows.Scan(&a.ClassID, &a.Num, &a.Name, &a.Description,
			&a.TypeID, &mod, &a.IsNotNull, &a.HasDefault); err != nil {
			return err
		}
		a.TypeModifier = Modifier(mod)
		out = append(out, a)
		return nil
	}, pq.Array(schemas))
	return out, err
}

func loadTypes(ctx context.Context, db Queryer) ([]*Type, error) {
	var out []*Type
	err := queryRows(ctx, db, "types", typesQuery, func(rows *sql.Rows) error {
		t := &Type{}
		var kind, category string
		var mod int32
		var variants pq.StringArray
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.NamespaceID, &t.NamespaceName,
			&kind, &category, &t.ClassID, &t.ArrayItemTypeID, &t.DomainBaseTypeID, &mod,
			&t.RangeSubTypeID, &variants); err != nil {
			return err
		}
		t.Kind = TypeKind(firstByte(kind))
		t.Category = Category(firstByte(category))
		t.DomainTypeModifier = Modifier(mod)
		if len(variants) > 0 {
			t.EnumVariants = []string(variants)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func loadConstraints(ctx context.Context, db Queryer, schemas []string) ([]*Constraint, error) {
	var out []*Constraint
	err := queryRows(ctx, db, "constraints", constraintsQuery, func(rows *sql.Rows) error {
		con := &Constraint{}
		var kind string
		var keys, foreignKeys pq.Int64Array
		if err := rows.Scan(&con.ID, &con.Name, &kind, &con.ClassID, &con.ForeignClassID, &keys, &foreignKeys); err != nil {
			return err
		}
		con.Type = ConstraintType(firstByte(kind))
		con.KeyAttributeNums = toInt16s(keys)
		con.ForeignKeyAttributeNums = toInt16s(foreignKeys)
		out = append(out, con)
		return nil
	}, pq.Array(schemas))
	return out, err
}

func loadProcedures(ctx context.Context, db Queryer, schemas []string) ([]*Procedure, error) {
	var out []*Procedure
	err := queryRows(ctx, db, "procedures", proceduresQuery, func(rows *sql.Rows) error {
		p := &Procedure{}
		var volatility string
		var argTypes pq.Int64Array
		var argNames pq.StringArray
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.NamespaceID, &p.NamespaceName,
			&p.IsStrict, &p.ReturnsSet, &volatility, &p.ReturnTypeID, &argTypes, &argNames, &p.ArgDefaultsNum); err != nil {
			return err
		}
		p.Volatility = Volatility(firstByte(volatility))
		p.ArgTypeIDs = make([]uint32, len(argTypes))
		for i, id := range argTypes {
			p.ArgTypeIDs[i] = uint32(id)
		}
		p.ArgNames = make([]string, len(argTypes))
		copy(p.ArgNames, argNames)
		out = append(out, p)
		return nil
	}, pq.Array(schemas))
	return out, err
}

func loadExtensions(ctx context.Context, db Queryer) ([]*Extension, error) {
	var out []*Extension
	err := queryRows(ctx, db, "extensions", extensionsQuery, func(rows *sql.Rows) error {
		ext := &Extension{}
		if err := rows.Scan(&ext.ID, &ext.Name, &ext.NamespaceID, &ext.NamespaceName); err != nil {
			return err
		}
		out = append(out, ext)
		return nil
	})
	return out, err
}

func firstByte(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}

func toInt16s(in []int64) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		out[i] = int16(v)
	}
	return out
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("pg-graphql/catalog")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
