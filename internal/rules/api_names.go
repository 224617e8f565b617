package rules

// frameAPINames lists DataFrame attributes and methods that are legitimate
// attribute accesses, so the attr-column-access rule does not flag them.
// Covers the public pandas.DataFrame surface plus the accessor namespaces.
var frameAPINames = []string{
	// properties
	"T", "at", "attrs", "axes", "columns", "dtypes", "empty", "flags",
	"iat", "iloc", "index", "loc", "ndim", "shape", "size", "style",
	"values",

	// accessor namespaces
	"str", "dt", "cat", "sparse", "plot",

	// arithmetic and comparison
	"abs", "add", "div", "divide", "dot", "eq", "floordiv", "ge", "gt",
	"le", "lt", "mod", "mul", "multiply", "ne", "pow", "radd", "rdiv",
	"rfloordiv", "rmod", "rmul", "round", "rpow", "rsub", "rtruediv",
	"sub", "subtract", "truediv",

	// aggregation and statistics
	"agg", "aggregate", "all", "any", "corr", "corrwith", "count", "cov",
	"cummax", "cummin", "cumprod", "cumsum", "describe", "diff", "kurt",
	"kurtosis", "max", "mean", "median", "min", "mode", "nunique",
	"pct_change", "prod", "product", "quantile", "rank", "sem", "skew",
	"std", "sum", "var", "value_counts",

	// selection and reshaping
	"assign", "compare", "drop", "drop_duplicates", "droplevel",
	"duplicated", "explode", "filter", "get", "groupby", "head", "idxmax",
	"idxmin", "insert", "isin", "items", "iterrows", "itertuples", "keys",
	"melt", "nlargest", "nsmallest", "pivot", "pivot_table", "pop",
	"query", "reindex", "reindex_like", "rename", "rename_axis",
	"reorder_levels", "reset_index", "sample", "select_dtypes", "set_axis",
	"set_index", "sort_index", "sort_values", "squeeze", "stack",
	"swapaxes", "swaplevel", "tail", "take", "transpose", "truncate",
	"unstack", "xs",

	// missing data
	"backfill", "bfill", "dropna", "ffill", "fillna", "interpolate",
	"isna", "isnull", "mask", "notna", "notnull", "pad", "replace",
	"where",

	// combination
	"align", "combine", "combine_first", "join", "merge", "update",

	// conversion and copies
	"astype", "convert_dtypes", "copy", "infer_objects", "to_clipboard",
	"to_csv", "to_dict", "to_excel", "to_feather", "to_hdf", "to_html",
	"to_json", "to_latex", "to_markdown", "to_numpy", "to_orc",
	"to_parquet", "to_period", "to_pickle", "to_records", "to_sql",
	"to_stata", "to_string", "to_timestamp", "to_xarray", "to_xml",

	// windows and time series
	"asfreq", "asof", "at_time", "between_time", "ewm", "expanding",
	"first", "first_valid_index", "last", "last_valid_index", "resample",
	"rolling", "shift", "to_offset", "tz_convert", "tz_localize",

	// misc
	"apply", "applymap", "boxplot", "clip", "equals", "eval", "hist",
	"info", "memory_usage", "pipe", "set_flags", "transform",
}
