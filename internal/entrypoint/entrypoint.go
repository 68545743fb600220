// Package entrypoint scans a Go source file for candidate entry points
// without executing it, ranks them, and selects one per the harness's
// selection rule. It is the Go-native analogue of a dynamic-language
// module scanner: because Go has no runtime module re-evaluation, the
// ranked record only names a symbol — turning that name into a running
// child process is the job of the launcher's plugin build step, not of
// this package.
package entrypoint

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
)

// Kind identifies which shape a scanned entry point record has.
type Kind string

const (
	KindCradleClass        Kind = "cradle-class"
	KindMainBlock          Kind = "main-block"
	KindMainLike           Kind = "main-like-function"
	KindCallableClass      Kind = "callable-class"
	KindTopLevelCall       Kind = "top-level-call"
	KindFunction           Kind = "parameterless-function"
	KindIneligibleFunction Kind = "ineligible-function"
)

// priority gives the fixed ranking for each kind; lower wins ties.
var priority = map[Kind]int{
	KindCradleClass:        0,
	KindMainBlock:          1,
	KindMainLike:           2,
	KindCallableClass:      3,
	KindTopLevelCall:       4,
	KindFunction:           5,
	KindIneligibleFunction: 6,
}

// EntryPoint is a single candidate entry point found in a scanned file.
type EntryPoint struct {
	Kind        Kind
	Name        string
	Priority    int
	Description string
	Line        int
}

// mainLikeNames mirrors the original scanner's main-like function names.
var mainLikeNames = map[string]bool{
	"main": false, // handled separately as KindMainBlock
	"run":  true, "start": true, "execute": true,
}

// Scan parses path statically (go/parser never executes code) and returns
// a ranked list of entry-point records.
func Scan(path string) ([]EntryPoint, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	methods := collectMethods(file)
	var points []EntryPoint

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil {
				continue // methods are classified via collectMethods/type analysis
			}
			points = append(points, classifyFunc(d, fset))
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				for _, spec := range d.Specs {
					ts, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}
					if _, ok := ts.Type.(*ast.StructType); !ok {
						continue
					}
					if ep, ok := classifyType(ts, methods, fset); ok {
						points = append(points, ep)
					}
				}
			}
			if d.Tok == token.VAR {
				points = append(points, classifyTopLevelVarCalls(d, fset)...)
			}
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Priority < points[j].Priority
	})
	return points, nil
}

// collectMethods maps a receiver type name to the set of method names
// declared on it, so struct types can be classified by their method set.
func collectMethods(file *ast.File) map[string]map[string]bool {
	out := map[string]map[string]bool{}
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
			continue
		}
		recvType := receiverTypeName(fd.Recv.List[0].Type)
		if recvType == "" {
			continue
		}
		if out[recvType] == nil {
			out[recvType] = map[string]bool{}
		}
		out[recvType][fd.Name.Name] = true
	}
	return out
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	default:
		return ""
	}
}

func classifyFunc(fd *ast.FuncDecl, fset *token.FileSet) EntryPoint {
	name := fd.Name.Name
	line := fset.Position(fd.Pos()).Line
	nparams := 0
	if fd.Type.Params != nil {
		for _, f := range fd.Type.Params.List {
			n := len(f.Names)
			if n == 0 {
				n = 1
			}
			nparams += n
		}
	}

	if name == "main" {
		return EntryPoint{
			Kind: KindMainBlock, Name: "__main__", Priority: priority[KindMainBlock],
			Description: "package main entry function", Line: line,
		}
	}
	if mainLikeNames[name] {
		return EntryPoint{
			Kind: KindMainLike, Name: name, Priority: priority[KindMainLike],
			Description: fmt.Sprintf("main-like function: %s", name), Line: line,
		}
	}
	if nparams == 0 {
		return EntryPoint{
			Kind: KindFunction, Name: name, Priority: priority[KindFunction],
			Description: fmt.Sprintf("parameterless function: %s", name), Line: line,
		}
	}
	// Mirrors the original scanner's "has_args and not is_main_candidate"
	// rejection: a function taking parameters is not a valid zero-argument
	// entry point and must never be selectable, named or not.
	return EntryPoint{
		Kind: KindIneligibleFunction, Name: name, Priority: priority[KindIneligibleFunction],
		Description: fmt.Sprintf("function with parameters: %s", name), Line: line,
	}
}

// classifyType inspects a struct type's method set: both a SetQueues and a
// Run method mark it as implementing the cradle contract (cradle-class,
// priority 0);
// a Call or Execute method marks it as a callable class (priority 3).
func classifyType(ts *ast.TypeSpec, methods map[string]map[string]bool, fset *token.FileSet) (EntryPoint, bool) {
	name := ts.Name.Name
	set := methods[name]
	line := fset.Position(ts.Pos()).Line

	if set["SetQueues"] && set["Run"] {
		return EntryPoint{
			Kind: KindCradleClass, Name: name, Priority: priority[KindCradleClass],
			Description: fmt.Sprintf("cradle-contract type: %s", name), Line: line,
		}, true
	}
	if set["Call"] || set["Execute"] {
		return EntryPoint{
			Kind: KindCallableClass, Name: name, Priority: priority[KindCallableClass],
			Description: fmt.Sprintf("callable type: %s", name), Line: line,
		}, true
	}
	return EntryPoint{}, false
}

// classifyTopLevelVarCalls finds package-level var initializers that are
// immediate call expressions, the Go analogue of a bare top-level call
// statement in a dynamic-language module.
func classifyTopLevelVarCalls(d *ast.GenDecl, fset *token.FileSet) []EntryPoint {
	var out []EntryPoint
	for _, spec := range d.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, val := range vs.Values {
			call, ok := val.(*ast.CallExpr)
			if !ok {
				continue
			}
			ident, ok := call.Fun.(*ast.Ident)
			if !ok {
				continue
			}
			out = append(out, EntryPoint{
				Kind: KindTopLevelCall, Name: ident.Name, Priority: priority[KindTopLevelCall],
				Description: fmt.Sprintf("top-level call: %s()", ident.Name),
				Line:        fset.Position(call.Pos()).Line,
			})
		}
	}
	return out
}
