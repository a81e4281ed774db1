package pgcatalog

import (
	"fmt"

	"github.com/koustreak/dbspec/internal/model"
)

// firstNormalOID is the first OID handed out to user objects.
const firstNormalOID = 16384

// userSchema filters out system namespaces; alias is the pg_namespace alias.
func userSchema(alias string) string {
	return fmt.Sprintf(`%[1]s.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND %[1]s.nspname NOT LIKE 'pg\_temp\_%%' AND %[1]s.nspname NOT LIKE 'pg\_toast\_temp\_%%'`, alias)
}

// notExtension excludes objects created by an extension script.
func notExtension(catalog, oid string) string {
	return fmt.Sprintf(`NOT EXISTS (SELECT 1 FROM pg_depend dep
		  WHERE dep.classid = '%s'::regclass AND dep.objid = %s AND dep.deptype = 'e')`, catalog, oid)
}

// meta selects the columns every owned object reports.
func meta(owner, acl, oid, catalog string) string {
	ownerCol, aclCol := "NULL::text", "NULL::text"
	if owner != "" {
		ownerCol = "pg_get_userbyid(" + owner + ")"
	}
	if acl != "" {
		aclCol = "array_to_string(" + acl + ", ',')"
	}
	return fmt.Sprintf("%s AS owner, %s AS privileges, obj_description(%s, '%s') AS description",
		ownerCol, aclCol, oid, catalog)
}

// queries holds one statement per kind. Column names follow the row
// contract of the catalog package.
var queries = map[model.Kind]string{
	model.KindSchema: `
		SELECT n.nspname AS name, ` + meta("n.nspowner", "n.nspacl", "n.oid", "pg_namespace") + `
		FROM pg_namespace n
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_namespace", "n.oid") + `
		ORDER BY n.nspname`,

	model.KindExtension: `
		SELECT e.extname AS name, n.nspname AS schema, e.extversion AS version,
		       obj_description(e.oid, 'pg_extension') AS description
		FROM pg_extension e
		JOIN pg_namespace n ON e.extnamespace = n.oid
		WHERE e.extname <> 'plpgsql'
		ORDER BY e.extname`,

	model.KindLanguage: `
		SELECT l.lanname AS name, l.lanpltrusted AS trusted, ` + meta("l.lanowner", "l.lanacl", "l.oid", "pg_language") + `
		FROM pg_language l
		WHERE l.lanispl
		  AND ` + notExtension("pg_language", "l.oid") + `
		ORDER BY l.lanname`,

	model.KindCollation: `
		SELECT n.nspname AS schema, c.collname AS name, c.collcollate AS lc_collate, c.collctype AS lc_ctype,
		       ` + meta("c.collowner", "", "c.oid", "pg_collation") + `
		FROM pg_collation c
		JOIN pg_namespace n ON c.collnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_collation", "c.oid") + `
		ORDER BY n.nspname, c.collname`,

	model.KindType: `
		SELECT n.nspname AS schema, t.typname AS name, t.typtype::text AS form,
		       ` + meta("t.typowner", "t.typacl", "t.oid", "pg_type") + `,
		       t.typinput::text AS input, t.typoutput::text AS output,
		       t.typreceive::text AS receive, t.typsend::text AS send,
		       t.typmodin::text AS typmod_in, t.typmodout::text AS typmod_out,
		       t.typanalyze::text AS analyze,
		       CASE WHEN t.typtype = 'b' THEN
		            CASE WHEN t.typlen < 0 THEN 'variable' ELSE t.typlen::text END END AS internallength,
		       CASE WHEN t.typtype = 'b' THEN
		            CASE t.typalign WHEN 'c' THEN 'char' WHEN 's' THEN 'int2' WHEN 'i' THEN 'int4' ELSE 'double' END END AS alignment,
		       CASE WHEN t.typtype = 'b' THEN
		            CASE t.typstorage WHEN 'p' THEN 'plain' WHEN 'e' THEN 'external' WHEN 'm' THEN 'main' ELSE 'extended' END END AS storage,
		       CASE WHEN t.typtype = 'b' AND t.typcategory <> 'U' THEN t.typcategory::text END AS category,
		       CASE WHEN t.typtype = 'b' AND t.typdelim <> ',' THEN t.typdelim::text END AS delimiter,
		       t.typispreferred AS preferred,
		       ARRAY(SELECT e.enumlabel::text FROM pg_enum e
		             WHERE e.enumtypid = t.oid ORDER BY e.enumsortorder) AS labels,
		       (SELECT format_type(r.rngsubtype, NULL) FROM pg_range r WHERE r.rngtypid = t.oid) AS subtype,
		       ARRAY(SELECT a.attname::text FROM pg_attribute a
		             WHERE a.attrelid = t.typrelid AND a.attnum > 0 AND NOT a.attisdropped
		             ORDER BY a.attnum) AS attnames,
		       ARRAY(SELECT format_type(a.atttypid, a.atttypmod) FROM pg_attribute a
		             WHERE a.attrelid = t.typrelid AND a.attnum > 0 AND NOT a.attisdropped
		             ORDER BY a.attnum) AS atttypes,
		       ARRAY(SELECT COALESCE(CASE WHEN a.attcollation <> at.typcollation THEN co.collname::text END, '')
		             FROM pg_attribute a
		             JOIN pg_type at ON a.atttypid = at.oid
		             LEFT JOIN pg_collation co ON a.attcollation = co.oid
		             WHERE a.attrelid = t.typrelid AND a.attnum > 0 AND NOT a.attisdropped
		             ORDER BY a.attnum) AS attcollations
		FROM pg_type t
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE t.typtype IN ('b', 'c', 'e', 'r')
		  AND (t.typrelid = 0 OR (SELECT c.relkind FROM pg_class c WHERE c.oid = t.typrelid) = 'c')
		  AND NOT EXISTS (SELECT 1 FROM pg_type el WHERE el.oid = t.typelem AND el.typarray = t.oid)
		  AND ` + userSchema("n") + `
		  AND ` + notExtension("pg_type", "t.oid") + `
		ORDER BY n.nspname, t.typname`,

	model.KindDomain: `
		SELECT n.nspname AS schema, t.typname AS name,
		       ` + meta("t.typowner", "t.typacl", "t.oid", "pg_type") + `,
		       format_type(t.typbasetype, t.typtypmod) AS type, t.typnotnull AS not_null,
		       t.typdefault AS default,
		       CASE WHEN t.typcollation <> bt.typcollation THEN co.collname END AS collation,
		       ARRAY(SELECT k.conname::text FROM pg_constraint k
		             WHERE k.contypid = t.oid AND k.contype = 'c' ORDER BY k.conname) AS check_names,
		       ARRAY(SELECT substring(pg_get_constraintdef(k.oid) FROM 7) FROM pg_constraint k
		             WHERE k.contypid = t.oid AND k.contype = 'c' ORDER BY k.conname) AS check_exprs
		FROM pg_type t
		JOIN pg_namespace n ON t.typnamespace = n.oid
		JOIN pg_type bt ON t.typbasetype = bt.oid
		LEFT JOIN pg_collation co ON t.typcollation = co.oid
		WHERE t.typtype = 'd'
		  AND ` + userSchema("n") + `
		  AND ` + notExtension("pg_type", "t.oid") + `
		ORDER BY n.nspname, t.typname`,

	model.KindFunction: `
		SELECT n.nspname AS schema, p.proname AS name,
		       ` + meta("p.proowner", "p.proacl", "p.oid", "pg_proc") + `,
		       pg_get_function_identity_arguments(p.oid) AS arguments,
		       pg_get_function_arguments(p.oid) AS allargs,
		       pg_get_function_result(p.oid) AS returns,
		       l.lanname AS language,
		       CASE WHEN p.probin IS NULL THEN p.prosrc END AS source,
		       p.probin AS obj_file,
		       CASE WHEN p.probin IS NOT NULL THEN p.prosrc END AS link_symbol,
		       p.provolatile::text AS volatility, p.proisstrict AS strict,
		       p.proleakproof AS leakproof, p.prosecdef AS security_definer,
		       p.procost AS cost, p.prorows AS rows, p.proconfig AS configuration
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		JOIN pg_language l ON p.prolang = l.oid
		WHERE p.prokind = 'f'
		  AND ` + userSchema("n") + `
		  AND ` + notExtension("pg_proc", "p.oid") + `
		ORDER BY n.nspname, p.proname, arguments`,

	model.KindAggregate: `
		SELECT n.nspname AS schema, p.proname AS name,
		       ` + meta("p.proowner", "p.proacl", "p.oid", "pg_proc") + `,
		       pg_get_function_identity_arguments(p.oid) AS arguments,
		       a.aggtransfn::text AS sfunc, format_type(a.aggtranstype, NULL) AS stype,
		       a.aggfinalfn::text AS finalfunc, a.agginitval AS initcond,
		       CASE WHEN a.aggsortop <> 0 THEN a.aggsortop::regoperator::text END AS sortop
		FROM pg_aggregate a
		JOIN pg_proc p ON a.aggfnoid = p.oid
		JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_proc", "p.oid") + `
		ORDER BY n.nspname, p.proname, arguments`,

	model.KindOperator: `
		SELECT n.nspname AS schema, o.oprname AS name,
		       ` + meta("o.oprowner", "", "o.oid", "pg_operator") + `,
		       CASE WHEN o.oprleft <> 0 THEN format_type(o.oprleft, NULL) END AS leftarg,
		       CASE WHEN o.oprright <> 0 THEN format_type(o.oprright, NULL) END AS rightarg,
		       o.oprcode::text AS procedure,
		       CASE WHEN o.oprcom <> 0 THEN o.oprcom::regoper::text END AS commutator,
		       CASE WHEN o.oprnegate <> 0 THEN o.oprnegate::regoper::text END AS negator,
		       o.oprrest::text AS restrict, o.oprjoin::text AS "join",
		       o.oprcanhash AS hashes, o.oprcanmerge AS merges
		FROM pg_operator o
		JOIN pg_namespace n ON o.oprnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_operator", "o.oid") + `
		ORDER BY n.nspname, o.oprname, leftarg, rightarg`,

	model.KindOperatorFamily: `
		SELECT n.nspname AS schema, f.opfname AS name, am.amname AS index_method,
		       ` + meta("f.opfowner", "", "f.oid", "pg_opfamily") + `
		FROM pg_opfamily f
		JOIN pg_am am ON f.opfmethod = am.oid
		JOIN pg_namespace n ON f.opfnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND NOT EXISTS (SELECT 1 FROM pg_opclass c WHERE c.opcfamily = f.oid AND c.opcname = f.opfname)
		  AND ` + notExtension("pg_opfamily", "f.oid") + `
		ORDER BY n.nspname, f.opfname, am.amname`,

	model.KindOperatorClass: `
		SELECT n.nspname AS schema, c.opcname AS name, am.amname AS index_method,
		       ` + meta("c.opcowner", "", "c.oid", "pg_opclass") + `,
		       format_type(c.opcintype, NULL) AS type, f.opfname AS family, c.opcdefault AS "default",
		       CASE WHEN c.opckeytype <> 0 THEN format_type(c.opckeytype, NULL) END AS storage,
		       ARRAY(SELECT ao.amopstrategy || ' ' || ao.amopopr::regoperator::text FROM pg_amop ao
		             WHERE ao.amopfamily = c.opcfamily
		               AND ao.amoplefttype = c.opcintype AND ao.amoprighttype = c.opcintype
		             ORDER BY ao.amopstrategy) AS operators,
		       ARRAY(SELECT ap.amprocnum || ' ' || ap.amproc::regprocedure::text FROM pg_amproc ap
		             WHERE ap.amprocfamily = c.opcfamily
		               AND ap.amproclefttype = c.opcintype AND ap.amprocrighttype = c.opcintype
		             ORDER BY ap.amprocnum) AS functions
		FROM pg_opclass c
		JOIN pg_am am ON c.opcmethod = am.oid
		JOIN pg_opfamily f ON c.opcfamily = f.oid
		JOIN pg_namespace n ON c.opcnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_opclass", "c.oid") + `
		ORDER BY n.nspname, c.opcname, am.amname`,

	model.KindConversion: `
		SELECT n.nspname AS schema, c.conname AS name,
		       ` + meta("c.conowner", "", "c.oid", "pg_conversion") + `,
		       pg_encoding_to_char(c.conforencoding) AS source_encoding,
		       pg_encoding_to_char(c.contoencoding) AS dest_encoding,
		       c.conproc::text AS function, c.condefault AS "default"
		FROM pg_conversion c
		JOIN pg_namespace n ON c.connamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_conversion", "c.oid") + `
		ORDER BY n.nspname, c.conname`,

	model.KindCast: fmt.Sprintf(`
		SELECT format_type(c.castsource, NULL) AS source, format_type(c.casttarget, NULL) AS target,
		       CASE WHEN c.castfunc <> 0 THEN c.castfunc::regprocedure::text END AS function,
		       c.castcontext::text AS context, c.castmethod::text AS method,
		       obj_description(c.oid, 'pg_cast') AS description
		FROM pg_cast c
		WHERE c.oid >= %d
		  AND `+notExtension("pg_cast", "c.oid")+`
		ORDER BY source, target`, firstNormalOID),

	model.KindTSParser: `
		SELECT n.nspname AS schema, p.prsname AS name,
		       ` + meta("", "", "p.oid", "pg_ts_parser") + `,
		       p.prsstart::text AS start, p.prstoken::text AS gettoken, p.prsend::text AS "end",
		       p.prslextype::text AS lextypes, p.prsheadline::text AS headline
		FROM pg_ts_parser p
		JOIN pg_namespace n ON p.prsnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_ts_parser", "p.oid") + `
		ORDER BY n.nspname, p.prsname`,

	model.KindTSTemplate: `
		SELECT n.nspname AS schema, t.tmplname AS name,
		       ` + meta("", "", "t.oid", "pg_ts_template") + `,
		       t.tmplinit::text AS init, t.tmpllexize::text AS lexize
		FROM pg_ts_template t
		JOIN pg_namespace n ON t.tmplnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_ts_template", "t.oid") + `
		ORDER BY n.nspname, t.tmplname`,

	model.KindTSDictionary: `
		SELECT n.nspname AS schema, d.dictname AS name,
		       ` + meta("d.dictowner", "", "d.oid", "pg_ts_dict") + `,
		       CASE WHEN tn.nspname = 'pg_catalog' THEN t.tmplname::text
		            ELSE tn.nspname || '.' || t.tmplname END AS template,
		       d.dictinitoption AS options
		FROM pg_ts_dict d
		JOIN pg_ts_template t ON d.dicttemplate = t.oid
		JOIN pg_namespace tn ON t.tmplnamespace = tn.oid
		JOIN pg_namespace n ON d.dictnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_ts_dict", "d.oid") + `
		ORDER BY n.nspname, d.dictname`,

	model.KindTSConfiguration: `
		SELECT n.nspname AS schema, c.cfgname AS name,
		       ` + meta("c.cfgowner", "", "c.oid", "pg_ts_config") + `,
		       CASE WHEN pn.nspname = 'pg_catalog' THEN p.prsname::text
		            ELSE pn.nspname || '.' || p.prsname END AS parser
		FROM pg_ts_config c
		JOIN pg_ts_parser p ON c.cfgparser = p.oid
		JOIN pg_namespace pn ON p.prsnamespace = pn.oid
		JOIN pg_namespace n ON c.cfgnamespace = n.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_ts_config", "c.oid") + `
		ORDER BY n.nspname, c.cfgname`,

	model.KindForeignDataWrapper: `
		SELECT w.fdwname AS name, ` + meta("w.fdwowner", "w.fdwacl", "w.oid", "pg_foreign_data_wrapper") + `,
		       CASE WHEN w.fdwhandler <> 0 THEN w.fdwhandler::regproc::text END AS handler,
		       CASE WHEN w.fdwvalidator <> 0 THEN w.fdwvalidator::regproc::text END AS validator,
		       w.fdwoptions AS options
		FROM pg_foreign_data_wrapper w
		WHERE ` + notExtension("pg_foreign_data_wrapper", "w.oid") + `
		ORDER BY w.fdwname`,

	model.KindForeignServer: `
		SELECT s.srvname AS name, ` + meta("s.srvowner", "s.srvacl", "s.oid", "pg_foreign_server") + `,
		       w.fdwname AS wrapper, s.srvtype AS type, s.srvversion AS version, s.srvoptions AS options
		FROM pg_foreign_server s
		JOIN pg_foreign_data_wrapper w ON s.srvfdw = w.oid
		WHERE ` + notExtension("pg_foreign_server", "s.oid") + `
		ORDER BY s.srvname`,

	model.KindUserMapping: `
		SELECT um.srvname AS server, um.usename AS name, um.umoptions AS options
		FROM pg_user_mappings um
		ORDER BY um.srvname, um.usename`,

	model.KindSequence: `
		SELECT n.nspname AS schema, c.relname AS name,
		       ` + meta("c.relowner", "c.relacl", "c.oid", "pg_class") + `,
		       s.seqstart AS start_value, s.seqincrement AS increment_by,
		       CASE WHEN (s.seqincrement > 0 AND s.seqmin = 1)
		              OR (s.seqincrement < 0 AND s.seqmin = CASE s.seqtypid
		                    WHEN 'int2'::regtype THEN -32768 WHEN 'int4'::regtype THEN -2147483648
		                    ELSE -9223372036854775808 END)
		            THEN NULL ELSE s.seqmin END AS min_value,
		       CASE WHEN (s.seqincrement < 0 AND s.seqmax = -1)
		              OR (s.seqincrement > 0 AND s.seqmax = CASE s.seqtypid
		                    WHEN 'int2'::regtype THEN 32767 WHEN 'int4'::regtype THEN 2147483647
		                    ELSE 9223372036854775807 END)
		            THEN NULL ELSE s.seqmax END AS max_value,
		       s.seqcache AS cache_value, s.seqcycle AS cycle,
		       oc.relname AS owner_table, oa.attname AS owner_column
		FROM pg_sequence s
		JOIN pg_class c ON s.seqrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		LEFT JOIN pg_depend od ON od.classid = 'pg_class'::regclass AND od.objid = c.oid
		     AND od.refclassid = 'pg_class'::regclass AND od.refobjsubid > 0 AND od.deptype = 'a'
		LEFT JOIN pg_class oc ON od.refobjid = oc.oid
		LEFT JOIN pg_attribute oa ON oa.attrelid = od.refobjid AND oa.attnum = od.refobjsubid
		WHERE ` + userSchema("n") + `
		  AND NOT EXISTS (SELECT 1 FROM pg_depend idd
		                  WHERE idd.classid = 'pg_class'::regclass AND idd.objid = c.oid AND idd.deptype = 'i')
		  AND ` + notExtension("pg_class", "c.oid") + `
		ORDER BY n.nspname, c.relname`,

	model.KindTable: `
		SELECT n.nspname AS schema, c.relname AS name,
		       ` + meta("c.relowner", "c.relacl", "c.oid", "pg_class") + `,
		       ARRAY(SELECT pn.nspname::text FROM pg_inherits i
		             JOIN pg_class pc ON i.inhparent = pc.oid
		             JOIN pg_namespace pn ON pc.relnamespace = pn.oid
		             WHERE i.inhrelid = c.oid ORDER BY i.inhseqno) AS parent_schemas,
		       ARRAY(SELECT pc.relname::text FROM pg_inherits i
		             JOIN pg_class pc ON i.inhparent = pc.oid
		             WHERE i.inhrelid = c.oid ORDER BY i.inhseqno) AS parent_names,
		       c.reloptions AS options, ts.spcname AS tablespace, c.relpersistence = 'u' AS unlogged
		FROM pg_class c
		JOIN pg_namespace n ON c.relnamespace = n.oid
		LEFT JOIN pg_tablespace ts ON c.reltablespace = ts.oid
		WHERE c.relkind IN ('r', 'p') AND NOT c.relispartition
		  AND ` + userSchema("n") + `
		  AND ` + notExtension("pg_class", "c.oid") + `
		ORDER BY n.nspname, c.relname`,

	model.KindForeignTable: `
		SELECT n.nspname AS schema, c.relname AS name,
		       ` + meta("c.relowner", "c.relacl", "c.oid", "pg_class") + `,
		       s.srvname AS server, ft.ftoptions AS options
		FROM pg_foreign_table ft
		JOIN pg_class c ON ft.ftrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		JOIN pg_foreign_server s ON ft.ftserver = s.oid
		WHERE ` + userSchema("n") + `
		  AND ` + notExtension("pg_class", "c.oid") + `
		ORDER BY n.nspname, c.relname`,

	model.KindColumn: `
		SELECT n.nspname AS schema, c.relname AS "table", c.relkind::text AS relkind,
		       a.attnum AS number, a.attname AS name,
		       format_type(a.atttypid, a.atttypmod) AS type, a.attnotnull AS not_null,
		       a.attinhcount > 0 AS inherited, pg_get_expr(d.adbin, d.adrelid) AS "default",
		       a.attstattarget AS statistics,
		       CASE WHEN a.attcollation <> t.typcollation THEN co.collname END AS collation,
		       array_to_string(a.attacl, ',') AS privileges,
		       col_description(c.oid, a.attnum) AS description
		FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		JOIN pg_type t ON a.atttypid = t.oid
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		LEFT JOIN pg_collation co ON a.attcollation = co.oid
		WHERE c.relkind IN ('r', 'p', 'f') AND a.attnum > 0 AND NOT a.attisdropped
		  AND ` + userSchema("n") + `
		ORDER BY n.nspname, c.relname, a.attnum`,

	model.KindConstraint: `
		SELECT n.nspname AS schema, c.relname AS "table", c.relkind::text AS relkind,
		       k.conname AS name, k.contype::text AS type,
		       ARRAY(SELECT a.attname::text FROM unnest(k.conkey) WITH ORDINALITY ck(attnum, ord)
		             JOIN pg_attribute a ON a.attrelid = k.conrelid AND a.attnum = ck.attnum
		             ORDER BY ck.ord) AS columns,
		       CASE WHEN k.contype = 'c' THEN substring(pg_get_constraintdef(k.oid) FROM 7) END AS expression,
		       k.condeferrable AS "deferrable", k.condeferred AS deferred, k.coninhcount > 0 AS inherited,
		       ts.spcname AS tablespace,
		       rn.nspname AS ref_schema, rc.relname AS ref_table,
		       ARRAY(SELECT a.attname::text FROM unnest(k.confkey) WITH ORDINALITY fk(attnum, ord)
		             JOIN pg_attribute a ON a.attrelid = k.confrelid AND a.attnum = fk.attnum
		             ORDER BY fk.ord) AS ref_columns,
		       k.confmatchtype::text AS match, k.confupdtype::text AS on_update, k.confdeltype::text AS on_delete,
		       obj_description(k.oid, 'pg_constraint') AS description
		FROM pg_constraint k
		JOIN pg_class c ON k.conrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		LEFT JOIN pg_class rc ON k.confrelid = rc.oid
		LEFT JOIN pg_namespace rn ON rc.relnamespace = rn.oid
		LEFT JOIN pg_class ic ON k.conindid = ic.oid AND k.contype IN ('p', 'u')
		LEFT JOIN pg_tablespace ts ON ic.reltablespace = ts.oid
		WHERE c.relkind IN ('r', 'p', 'f') AND k.contype IN ('c', 'p', 'u', 'f') AND k.conparentid = 0
		  AND ` + userSchema("n") + `
		ORDER BY n.nspname, c.relname, k.conname`,

	model.KindIndex: `
		SELECT n.nspname AS schema, c.relname AS "table", c.relkind::text AS relkind, ic.relname AS name,
		       ` + meta("", "", "ic.oid", "pg_class") + `,
		       am.amname AS access_method, i.indisunique AS "unique",
		       pg_get_expr(i.indpred, i.indrelid) AS predicate, ts.spcname AS tablespace,
		       ARRAY(SELECT COALESCE(a.attname::text, '')
		             FROM generate_subscripts(i.indkey::int2[], 1) k(pos)
		             LEFT JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = i.indkey[k.pos]
		             WHERE k.pos < i.indnkeyatts ORDER BY k.pos) AS key_columns,
		       ARRAY(SELECT CASE WHEN i.indkey[k.pos] = 0 THEN pg_get_indexdef(i.indexrelid, k.pos + 1, true) ELSE '' END
		             FROM generate_subscripts(i.indkey::int2[], 1) k(pos)
		             WHERE k.pos < i.indnkeyatts ORDER BY k.pos) AS key_exprs,
		       ARRAY(SELECT CASE WHEN oc.opcdefault THEN '' ELSE oc.opcname::text END
		             FROM generate_subscripts(i.indclass::oid[], 1) k(pos)
		             JOIN pg_opclass oc ON oc.oid = i.indclass[k.pos]
		             WHERE k.pos < i.indnkeyatts ORDER BY k.pos) AS key_opclasses,
		       ARRAY(SELECT CASE i.indoption[k.pos] & 3 WHEN 1 THEN 'desc nulls last' WHEN 2 THEN 'nulls first'
		                    WHEN 3 THEN 'desc' ELSE '' END
		             FROM generate_subscripts(i.indoption::int2[], 1) k(pos)
		             WHERE k.pos < i.indnkeyatts ORDER BY k.pos) AS key_orders
		FROM pg_index i
		JOIN pg_class ic ON i.indexrelid = ic.oid
		JOIN pg_class c ON i.indrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		JOIN pg_am am ON ic.relam = am.oid
		LEFT JOIN pg_tablespace ts ON ic.reltablespace = ts.oid
		WHERE c.relkind IN ('r', 'p', 'm')
		  AND NOT EXISTS (SELECT 1 FROM pg_constraint k
		                  WHERE k.conindid = i.indexrelid AND k.contype IN ('p', 'u', 'x'))
		  AND ` + userSchema("n") + `
		ORDER BY n.nspname, c.relname, ic.relname`,

	model.KindView: `
		SELECT n.nspname AS schema, c.relname AS name,
		       ` + meta("c.relowner", "c.relacl", "c.oid", "pg_class") + `,
		       pg_get_viewdef(c.oid, true) AS definition
		FROM pg_class c
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE c.relkind = 'v'
		  AND ` + userSchema("n") + `
		  AND ` + notExtension("pg_class", "c.oid") + `
		ORDER BY n.nspname, c.relname`,

	model.KindMaterializedView: `
		SELECT n.nspname AS schema, c.relname AS name,
		       ` + meta("c.relowner", "c.relacl", "c.oid", "pg_class") + `,
		       pg_get_viewdef(c.oid, true) AS definition, c.relispopulated AS with_data
		FROM pg_class c
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE c.relkind = 'm'
		  AND ` + userSchema("n") + `
		  AND ` + notExtension("pg_class", "c.oid") + `
		ORDER BY n.nspname, c.relname`,

	model.KindTrigger: `
		SELECT n.nspname AS schema, c.relname AS "table", c.relkind::text AS relkind, t.tgname AS name,
		       obj_description(t.oid, 'pg_trigger') AS description,
		       t.tgtype AS tgtype,
		       substring(pg_get_triggerdef(t.oid) FROM 'EXECUTE (?:PROCEDURE|FUNCTION) (.*)$') AS procedure,
		       substring(pg_get_triggerdef(t.oid) FROM 'WHEN \((.*)\) EXECUTE') AS condition,
		       t.tgconstraint <> 0 AS "constraint", t.tgdeferrable AS "deferrable", t.tginitdeferred AS deferred
		FROM pg_trigger t
		JOIN pg_class c ON t.tgrelid = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE NOT t.tgisinternal AND c.relkind IN ('r', 'p', 'v')
		  AND ` + userSchema("n") + `
		ORDER BY n.nspname, c.relname, t.tgname`,

	model.KindRule: `
		SELECT n.nspname AS schema, c.relname AS "table", c.relkind::text AS relkind, r.rulename AS name,
		       obj_description(r.oid, 'pg_rewrite') AS description,
		       r.ev_type::text AS event, r.is_instead AS instead,
		       substring(pg_get_ruledef(r.oid) FROM ' WHERE (.*) DO ') AS condition,
		       substring(pg_get_ruledef(r.oid) FROM ' DO (?:INSTEAD )?(.*?);?$') AS actions
		FROM pg_rewrite r
		JOIN pg_class c ON r.ev_class = c.oid
		JOIN pg_namespace n ON c.relnamespace = n.oid
		WHERE r.rulename <> '_RETURN' AND c.relkind IN ('r', 'p', 'v')
		  AND ` + userSchema("n") + `
		ORDER BY n.nspname, c.relname, r.rulename`,

	model.KindEventTrigger: `
		SELECT e.evtname AS name, ` + meta("e.evtowner", "", "e.oid", "pg_event_trigger") + `,
		       e.evtevent AS event, e.evtfoid::regproc::text AS procedure,
		       e.evtenabled::text AS enabled, e.evttags AS tags
		FROM pg_event_trigger e
		WHERE ` + notExtension("pg_event_trigger", "e.oid") + `
		ORDER BY e.evtname`,
}
