package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"framecheck/internal/logging"
	"framecheck/internal/mangle"
)

// moduleScope is the scope name used for statements outside any function.
const moduleScope = "<module>"

// FactSchemaVersion changes whenever the analyzer's fact shapes or
// semantics change. Cached facts from another version are unusable.
const FactSchemaVersion = "2"

// pandasReaders are pandas top-level functions whose result is a dataframe.
var pandasReaders = map[string]bool{
	"read_csv":       true,
	"read_table":     true,
	"read_fwf":       true,
	"read_excel":     true,
	"read_json":      true,
	"read_parquet":   true,
	"read_orc":       true,
	"read_feather":   true,
	"read_pickle":    true,
	"read_hdf":       true,
	"read_html":      true,
	"read_sql":       true,
	"read_sql_query": true,
	"read_sql_table": true,
	"DataFrame":      true,
	"concat":         true,
	"merge":          true,
}

// frameReturningMethods are dataframe methods that return another dataframe,
// so assigning their result keeps the variable a frame.
var frameReturningMethods = map[string]bool{
	"copy":            true,
	"head":            true,
	"tail":            true,
	"sample":          true,
	"fillna":          true,
	"dropna":          true,
	"drop":            true,
	"drop_duplicates": true,
	"rename":          true,
	"merge":           true,
	"join":            true,
	"sort_values":     true,
	"sort_index":      true,
	"reset_index":     true,
	"set_index":       true,
	"astype":          true,
	"query":           true,
	"filter":          true,
	"assign":          true,
	"pipe":            true,
}

// mergeKwargs are the merge keyword arguments the policy cares about.
var mergeKwargs = map[string]bool{
	"how":         true,
	"on":          true,
	"left_on":     true,
	"right_on":    true,
	"left_index":  true,
	"right_index": true,
	"validate":    true,
}

// Analyzer parses Python source and emits dataframe facts for the
// policy engine.
type Analyzer struct {
	parser      *sitter.Parser
	nameHints   []string
	schemaFuncs map[string]bool
}

// NewAnalyzer creates an analyzer. nameHints are glob patterns for variable
// names assumed to hold dataframes; schemaFuncs are function names whose
// call counts as a schema declaration.
func NewAnalyzer(nameHints []string, schemaFuncs []string) *Analyzer {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	funcs := make(map[string]bool, len(schemaFuncs))
	for _, name := range schemaFuncs {
		funcs[name] = true
	}
	return &Analyzer{
		parser:      parser,
		nameHints:   nameHints,
		schemaFuncs: funcs,
	}
}

// Analyze parses one file and returns its facts. file should be the
// root-relative path; it anchors every emitted fact.
func (a *Analyzer) Analyze(ctx context.Context, file string, content []byte) ([]mangle.Fact, error) {
	tree, err := a.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	defer tree.Close()

	fa := &fileAnalysis{
		analyzer:      a,
		file:          file,
		content:       content,
		pandasAliases: make(map[string]bool),
		readerAliases: make(map[string]string),
		seenFrames:    make(map[string]bool),
	}

	fa.emit("py_file", file)

	root := tree.RootNode()
	sc := fa.newScope(moduleScope, "", nil)
	fa.walkBlock(root, sc)

	logging.ParseDebug("%s: %d facts", file, len(fa.facts))
	return fa.facts, nil
}

// fileAnalysis carries per-file state across the walk.
type fileAnalysis struct {
	analyzer      *Analyzer
	file          string
	content       []byte
	pandasAliases map[string]bool   // local name -> is pandas module
	readerAliases map[string]string // local name -> pandas reader it aliases
	facts         []mangle.Fact
	seenFrames    map[string]bool
}

// scope tracks dataframe variables visible in one lexical scope.
type scope struct {
	name   string
	fn     string // enclosing function name, "" at module level
	frames map[string]bool
	params map[string]bool // frame-typed parameters (function scopes only)
}

func (fa *fileAnalysis) newScope(name, fn string, parent *scope) *scope {
	sc := &scope{
		name:   name,
		fn:     fn,
		frames: make(map[string]bool),
		params: make(map[string]bool),
	}
	if parent != nil {
		for v := range parent.frames {
			sc.frames[v] = true
		}
	}
	return sc
}

func (fa *fileAnalysis) emit(predicate string, args ...interface{}) {
	fa.facts = append(fa.facts, mangle.Fact{Predicate: predicate, Args: args})
}

func (fa *fileAnalysis) text(n *sitter.Node) string {
	return string(fa.content[n.StartByte():n.EndByte()])
}

func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func column(n *sitter.Node) int {
	return int(n.StartPoint().Column) + 1
}

// markFrame records a variable as a dataframe, emitting the fact once.
func (fa *fileAnalysis) markFrame(sc *scope, name string) {
	if name == "" {
		return
	}
	sc.frames[name] = true
	key := sc.name + "\x00" + name
	if !fa.seenFrames[key] {
		fa.seenFrames[key] = true
		fa.emit("frame_var", fa.file, sc.name, name)
	}
}

// isFrame reports whether an identifier names a dataframe in this scope,
// by prior inference or by configured name hints.
func (fa *fileAnalysis) isFrame(sc *scope, name string) bool {
	if sc.frames[name] {
		return true
	}
	return fa.matchesHint(name)
}

func (fa *fileAnalysis) matchesHint(name string) bool {
	for _, pattern := range fa.analyzer.nameHints {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// walkBlock processes the statements of a module, function, or compound
// statement body.
func (fa *fileAnalysis) walkBlock(node *sitter.Node, sc *scope) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			fa.handleImport(child)
		case "import_from_statement":
			fa.handleImportFrom(child)
		case "function_definition":
			fa.handleFunction(child, sc)
		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				if inner.Type() == "function_definition" {
					fa.handleFunction(inner, sc)
				}
			}
		case "expression_statement":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				fa.handleStatementExpr(child.NamedChild(j), sc)
			}
		case "return_statement":
			fa.handleReturn(child, sc)
		default:
			if compoundStatements[child.Type()] {
				fa.walkBlock(child, sc)
			} else {
				// conditions, iterables, with-items and other bare
				// expressions hanging off a statement
				fa.visitExpr(child, sc)
			}
		}
	}
}

// compoundStatements contain nested statement lists worth recursing into.
var compoundStatements = map[string]bool{
	"if_statement":     true,
	"elif_clause":      true,
	"else_clause":      true,
	"for_statement":    true,
	"while_statement":  true,
	"with_statement":   true,
	"try_statement":    true,
	"except_clause":    true,
	"finally_clause":   true,
	"match_statement":  true,
	"case_clause":      true,
	"class_definition": true,
	"block":            true,
}

func (fa *fileAnalysis) handleImport(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			if fa.text(child) == "pandas" {
				fa.pandasAliases["pandas"] = true
			}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil && fa.text(name) == "pandas" {
				fa.pandasAliases[fa.text(alias)] = true
			}
		}
	}
}

func (fa *fileAnalysis) handleImportFrom(node *sitter.Node) {
	module := node.ChildByFieldName("module_name")
	if module == nil || fa.text(module) != "pandas" {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			name := fa.text(child)
			if name != "pandas" && pandasReaders[name] {
				fa.readerAliases[name] = name
			}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil && pandasReaders[fa.text(name)] {
				fa.readerAliases[fa.text(alias)] = fa.text(name)
			}
		}
	}
}

func (fa *fileAnalysis) handleFunction(node *sitter.Node, parent *scope) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	funcName := fa.text(nameNode)
	sc := fa.newScope(funcName, funcName, parent)

	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			fa.handleParam(params.NamedChild(i), sc)
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		fa.walkBlock(body, sc)
	}
}

func (fa *fileAnalysis) handleParam(param *sitter.Node, sc *scope) {
	var nameNode, typeNode *sitter.Node
	switch param.Type() {
	case "identifier":
		nameNode = param
	case "typed_parameter", "typed_default_parameter":
		typeNode = param.ChildByFieldName("type")
		if n := param.ChildByFieldName("name"); n != nil {
			nameNode = n
		} else if param.NamedChildCount() > 0 {
			nameNode = param.NamedChild(0)
		}
	case "default_parameter":
		nameNode = param.ChildByFieldName("name")
	default:
		return
	}
	if nameNode == nil || nameNode.Type() != "identifier" {
		return
	}

	name := fa.text(nameNode)
	isFrame := false
	if typeNode != nil && strings.Contains(fa.text(typeNode), "DataFrame") {
		isFrame = true
	}
	if !isFrame && fa.matchesHint(name) {
		isFrame = true
	}
	if isFrame {
		fa.markFrame(sc, name)
		sc.params[name] = true
		fa.emit("frame_param", fa.file, sc.fn, name)
	}
}

func (fa *fileAnalysis) handleReturn(node *sitter.Node, sc *scope) {
	if sc.fn == "" {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "identifier" && sc.params[fa.text(child)] {
			fa.emit("returns_param", fa.file, sc.fn, fa.text(child), line(node))
		} else {
			fa.visitExpr(child, sc)
		}
	}
}

// handleStatementExpr dispatches the expression statements the walk cares
// about: assignments first, all other expressions through visitExpr.
func (fa *fileAnalysis) handleStatementExpr(node *sitter.Node, sc *scope) {
	switch node.Type() {
	case "assignment":
		fa.handleAssignment(node, sc)
	case "augmented_assignment":
		left := node.ChildByFieldName("left")
		if left != nil {
			fa.noteMutation(left, sc, line(node))
			fa.noteChained(left, sc)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			fa.visitExpr(right, sc)
		}
	default:
		fa.visitExpr(node, sc)
	}
}

func (fa *fileAnalysis) handleAssignment(node *sitter.Node, sc *scope) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	typeNode := node.ChildByFieldName("type")

	if right != nil {
		fa.visitExpr(right, sc)
	}
	if left == nil {
		return
	}

	fa.noteChained(left, sc)
	fa.noteMutation(left, sc, line(node))
	fa.noteZeroFill(left, right, sc)

	if left.Type() == "identifier" {
		fa.inferFrame(fa.text(left), right, typeNode, sc)
	} else {
		fa.visitExpr(left, sc)
	}
}

// noteChained flags assignment targets of the form df[...][...] = value.
func (fa *fileAnalysis) noteChained(left *sitter.Node, sc *scope) {
	if subscriptDepth(left) < 2 {
		return
	}
	if base := baseIdentifier(left); base != nil && fa.isFrame(sc, fa.text(base)) {
		fa.markFrame(sc, fa.text(base))
		fa.emit("chained_assign", fa.file, sc.name, line(left))
	}
}

// noteMutation records writes through a frame parameter inside a function.
func (fa *fileAnalysis) noteMutation(left *sitter.Node, sc *scope, ln int) {
	if sc.fn == "" {
		return
	}
	if left.Type() != "subscript" && left.Type() != "attribute" {
		return
	}
	if base := baseIdentifier(left); base != nil && sc.params[fa.text(base)] {
		fa.emit("param_mutated", fa.file, sc.fn, fa.text(base), ln)
	}
}

// noteZeroFill flags df["col"] = <zero scalar>.
func (fa *fileAnalysis) noteZeroFill(left, right *sitter.Node, sc *scope) {
	if left == nil || right == nil || left.Type() != "subscript" {
		return
	}
	value := left.ChildByFieldName("value")
	sub := left.ChildByFieldName("subscript")
	if value == nil || sub == nil || value.Type() != "identifier" {
		return
	}
	if !fa.isFrame(sc, fa.text(value)) {
		return
	}
	col := stringLiteral(fa, sub)
	if col == "" {
		col = fa.text(sub)
	}
	kind := zeroKind(fa, right)
	if kind == "" {
		return
	}
	fa.markFrame(sc, fa.text(value))
	fa.emit("zero_fill", fa.file, sc.name, col, kind, line(left))
}

// inferFrame decides whether an assignment makes its target a dataframe.
func (fa *fileAnalysis) inferFrame(name string, right, typeNode *sitter.Node, sc *scope) {
	if typeNode != nil && strings.Contains(fa.text(typeNode), "DataFrame") {
		fa.markFrame(sc, name)
	}
	if fa.matchesHint(name) {
		fa.markFrame(sc, name)
	}
	if right == nil {
		return
	}

	switch right.Type() {
	case "call":
		if reader, ok := fa.pandasReaderCall(right); ok {
			fa.markFrame(sc, name)
			// Only true readers count as external loads; constructors like
			// DataFrame and concat carry their schema in the call itself.
			if strings.HasPrefix(reader, "read_") {
				fa.emit("frame_load", fa.file, sc.name, name, reader, line(right))
			}
			return
		}
		if recv, method, ok := fa.frameMethodCall(right, sc); ok && frameReturningMethods[method] {
			fa.markFrame(sc, recv)
			fa.markFrame(sc, name)
		}
	case "subscript":
		if base := baseIdentifier(right); base != nil && fa.isFrame(sc, fa.text(base)) {
			fa.markFrame(sc, fa.text(base))
			fa.markFrame(sc, name)
		}
	case "identifier":
		if fa.isFrame(sc, fa.text(right)) {
			fa.markFrame(sc, name)
		}
	}
}

// pandasReaderCall matches pd.read_*(...), pd.DataFrame(...), pd.concat(...)
// and bare calls of readers imported from pandas. Returns the reader name.
func (fa *fileAnalysis) pandasReaderCall(call *sitter.Node) (string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	switch fn.Type() {
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return "", false
		}
		if obj.Type() == "identifier" && fa.pandasAliases[fa.text(obj)] && pandasReaders[fa.text(attr)] {
			return fa.text(attr), true
		}
	case "identifier":
		if orig, ok := fa.readerAliases[fa.text(fn)]; ok {
			return orig, true
		}
	}
	return "", false
}

// frameMethodCall matches <frame>.<method>(...). Returns receiver and method.
func (fa *fileAnalysis) frameMethodCall(call *sitter.Node, sc *scope) (string, string, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "attribute" {
		return "", "", false
	}
	obj := fn.ChildByFieldName("object")
	attr := fn.ChildByFieldName("attribute")
	if obj == nil || attr == nil || obj.Type() != "identifier" {
		return "", "", false
	}
	name := fa.text(obj)
	if !fa.isFrame(sc, name) {
		return "", "", false
	}
	return name, fa.text(attr), true
}

// visitExpr walks expressions, emitting attribute-access and method-call facts.
func (fa *fileAnalysis) visitExpr(node *sitter.Node, sc *scope) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "call":
		fa.visitCall(node, sc)
		return
	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if obj != nil && attr != nil && obj.Type() == "identifier" && fa.isFrame(sc, fa.text(obj)) {
			fa.markFrame(sc, fa.text(obj))
			fa.emit("attr_access", fa.file, sc.name, fa.text(obj), fa.text(attr), line(attr))
			return
		}
		fa.visitExpr(obj, sc)
		return
	case "assignment":
		// walrus-free nested assignment (e.g. in tuples); treat as statement
		fa.handleAssignment(node, sc)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		fa.visitExpr(node.NamedChild(i), sc)
	}
}

func (fa *fileAnalysis) visitCall(call *sitter.Node, sc *scope) {
	fn := call.ChildByFieldName("function")
	args := call.ChildByFieldName("arguments")
	ln := line(call)

	// pd.merge(left, right, ...)
	if fn != nil && fn.Type() == "attribute" {
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj != nil && attr != nil && obj.Type() == "identifier" &&
			fa.pandasAliases[fa.text(obj)] && fa.text(attr) == "merge" {
			fa.emit("merge_call", fa.file, sc.name, "pandas.merge", ln, column(call))
			fa.emitMergeKwargs(args, ln, column(call))
		}
	}

	if recv, method, ok := fa.frameMethodCall(call, sc); ok {
		fa.markFrame(sc, recv)

		if fa.hasInplaceTrue(args) {
			fa.emit("inplace_call", fa.file, sc.name, method, ln)
			if sc.fn != "" && sc.params[recv] {
				fa.emit("param_mutated", fa.file, sc.fn, recv, ln)
			}
		}

		switch method {
		case "merge", "join":
			fa.emit("merge_call", fa.file, sc.name, recv+"."+method, ln, column(call))
			fa.emitMergeKwargs(args, ln, column(call))
		case "query", "eval":
			if fa.firstArgIsString(args) {
				fa.emit("string_query", fa.file, sc.name, method, ln)
			}
		case "astype":
			fa.emit("schema_decl", fa.file, sc.name, recv, ln)
		}
	} else if fn != nil && fn.Type() == "identifier" && fa.analyzer.schemaFuncs[fa.text(fn)] {
		// validate_schema(df, ...) declares the schema of its frame argument
		if args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				arg := args.NamedChild(i)
				if arg.Type() == "identifier" && fa.isFrame(sc, fa.text(arg)) {
					fa.markFrame(sc, fa.text(arg))
					fa.emit("schema_decl", fa.file, sc.name, fa.text(arg), ln)
				}
			}
		}
	} else if fn != nil && fn.Type() == "attribute" {
		fa.visitExpr(fn.ChildByFieldName("object"), sc)
	}

	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() == "keyword_argument" {
				fa.visitExpr(arg.ChildByFieldName("value"), sc)
			} else {
				fa.visitExpr(arg, sc)
			}
		}
	}
}

// emitMergeKwargs keys kwargs by the call's line and column so two merge
// calls on one source line do not share each other's kwargs.
func (fa *fileAnalysis) emitMergeKwargs(args *sitter.Node, ln, col int) {
	if args == nil {
		return
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "keyword_argument" {
			continue
		}
		name := arg.ChildByFieldName("name")
		if name != nil && mergeKwargs[fa.text(name)] {
			fa.emit("merge_kwarg", fa.file, ln, col, fa.text(name))
		}
	}
}

func (fa *fileAnalysis) hasInplaceTrue(args *sitter.Node) bool {
	if args == nil {
		return false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "keyword_argument" {
			continue
		}
		name := arg.ChildByFieldName("name")
		value := arg.ChildByFieldName("value")
		if name != nil && value != nil && fa.text(name) == "inplace" && value.Type() == "true" {
			return true
		}
	}
	return false
}

func (fa *fileAnalysis) firstArgIsString(args *sitter.Node) bool {
	if args == nil {
		return false
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "keyword_argument" {
			continue
		}
		return arg.Type() == "string"
	}
	return false
}

// subscriptDepth counts nested subscripts along the value chain, so
// df[a][b] has depth 2 and df.loc[a] has depth 1.
func subscriptDepth(n *sitter.Node) int {
	depth := 0
	for n != nil {
		switch n.Type() {
		case "subscript":
			depth++
			n = n.ChildByFieldName("value")
		case "attribute":
			n = n.ChildByFieldName("object")
		default:
			return depth
		}
	}
	return depth
}

// baseIdentifier walks down attribute/subscript chains to the root identifier.
func baseIdentifier(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n
		case "subscript":
			n = n.ChildByFieldName("value")
		case "attribute":
			n = n.ChildByFieldName("object")
		default:
			return nil
		}
	}
	return nil
}

// stringLiteral returns the unquoted content of a string node, or "".
func stringLiteral(fa *fileAnalysis, n *sitter.Node) string {
	if n == nil || n.Type() != "string" {
		return ""
	}
	raw := fa.text(n)
	raw = strings.TrimLeft(raw, "rbuRBU")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	return raw
}

// zeroKind classifies a zero-like scalar literal on the right-hand side.
// None is a missing marker, not a zero filler, so it never classifies.
func zeroKind(fa *fileAnalysis, n *sitter.Node) string {
	switch n.Type() {
	case "integer":
		if fa.text(n) == "0" {
			return "int"
		}
	case "float":
		text := strings.TrimRight(fa.text(n), "0")
		if text == "0." || text == "." || text == "0" {
			return "float"
		}
	case "string":
		if stringLiteral(fa, n) == "" {
			return "str"
		}
	case "false":
		return "bool"
	case "unary_operator":
		// -0 and friends
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if kind := zeroKind(fa, n.NamedChild(i)); kind != "" {
				return kind
			}
		}
	}
	return ""
}
