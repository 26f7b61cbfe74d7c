package hostfunc

import "github.com/tetratelabs/wazero/api"

// aliases maps the prefixed names some guest toolchains import to their
// catalog entries.
var aliases = map[string]string{
	"nix_fetch_url":    "fetch_url",
	"nix_fetch_git":    "fetch_git",
	"nix_fetch_github": "fetch_github",
	"nix_add_to_store": "add_to_store",
	"nix_resolve_dep":  "resolve_dependency",
	"nix_get_system":   "get_system",
	"nix_get_cores":    "get_cores",
	"nix_get_out_path": "get_out_path",
}

func fn(name string, p, r []api.ValueType, h Handler) Func {
	return Func{Name: name, Params: p, Results: r, Handler: h}
}

// catalog returns the built-in host functions.
func catalog() []Func {
	one := []api.ValueType{i32}
	funcs := []Func{
		fn("panic", params(2), nil, panicFn),
		fn("warn", params(2), nil, warnFn),

		fn("get_type", one, one, getType),
		fn("make_int", []api.ValueType{i64}, one, makeInt),
		fn("get_int", one, []api.ValueType{i64}, getInt),
		fn("make_float", []api.ValueType{f64}, one, makeFloat),
		fn("get_float", one, []api.ValueType{f64}, getFloat),
		fn("make_string", params(2), one, makeString),
		fn("copy_string", params(3), one, copyString),
		fn("get_string_len", one, one, getStringLen),
		fn("make_bool", one, one, makeBool),
		fn("get_bool", one, one, getBool),
		fn("make_null", nil, one, makeNull),
		fn("make_path", params(2), one, makePath),
		fn("copy_path", params(3), one, copyPath),

		fn("make_list", params(2), one, makeList),
		fn("copy_list", params(3), one, copyList),
		fn("get_list_len", one, one, getListLen),
		fn("get_list_elem", params(2), one, getListElem),
		fn("make_attrset", params(2), one, makeAttrset),
		fn("copy_attrset", params(3), one, copyAttrset),
		fn("copy_attrname", params(4), nil, copyAttrname),
		fn("get_attrs_len", one, one, getAttrsLen),
		fn("has_attr", params(3), one, hasAttr),
		fn("get_attr", params(3), one, getAttr),
		fn("call_function", params(3), one, callFunction),

		fn("fetch_url", params(6), one, effect("fetch_url", 4, fetchURL)),
		fn("fetch_git", params(8), one, effect("fetch_git", 6, fetchGit)),
		fn("fetch_github", params(10), one, effect("fetch_github", 8, fetchGitHub)),
		fn("add_to_store", params(4), one, effect("add_to_store", 2, addToStore)),
		fn("resolve_dependency", params(4), one, effect("resolve_dependency", 2, resolveDependency)),
		fn("get_system", params(2), one, effect("get_system", 0, getSystem)),
		fn("get_cores", nil, one, getCores),
		fn("get_out_path", params(4), one, effect("get_out_path", 2, getOutPath)),
	}

	byName := make(map[string]Func, len(funcs))
	for _, f := range funcs {
		byName[f.Name] = f
	}
	for alias, target := range aliases {
		f := byName[target]
		f.Name = alias
		funcs = append(funcs, f)
	}
	return funcs
}
