package treesitter

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codechisel/codechisel/pkg/chunk"
)

// convertTree copies the named nodes of a parsed tree into the engine's
// arena form. Line and byte offsets shift embedded subtrees to their
// position in the host file; both are zero for a whole-file parse.
func convertTree(root *sitter.Node, lineOff, byteOff int) *chunk.Tree {
	t := chunk.NewTree(int(root.NamedChildCount())*4 + 1)
	addSubtree(t, chunk.NoNode, root, lineOff, byteOff)
	return t
}

func addSubtree(t *chunk.Tree, parent chunk.NodeID, node *sitter.Node, lineOff, byteOff int) chunk.NodeID {
	id := t.AddNode(parent, chunk.Node{
		Type:      node.Type(),
		StartLine: int(node.StartPoint().Row) + 1 + lineOff,
		EndLine:   int(node.EndPoint().Row) + 1 + lineOff,
		StartByte: int(node.StartByte()) + byteOff,
		EndByte:   int(node.EndByte()) + byteOff,
	})
	for i := 0; i < int(node.NamedChildCount()); i++ {
		addSubtree(t, id, node.NamedChild(i), lineOff, byteOff)
	}
	return id
}

// collectCaptures walks the arena and returns the file's definition nodes
// in document order. The walk does not descend into captured nodes; when a
// captured node is too large to emit whole, the engine re-enqueues its
// children itself.
func collectCaptures(t *chunk.Tree, language, content string) []chunk.Capture {
	family := familyFor(language)
	if len(captureTables[family]) == 0 {
		return nil
	}
	var out []chunk.Capture
	var walk func(id chunk.NodeID)
	walk = func(id chunk.NodeID) {
		if name := captureFor(t, id, family, content); name != "" {
			out = append(out, chunk.Capture{Node: id, Name: name})
			return
		}
		for _, c := range t.Node(id).Children {
			walk(c)
		}
	}
	if root := t.Root(); root != chunk.NoNode {
		walk(root)
	}
	return out
}

// captureFor returns the capture name for a node, or "" when the node is
// not a definition in this language. A few node types qualify only in
// context: anonymous functions count when bound to a variable, and Elixir
// definitions hide behind generic call nodes.
func captureFor(t *chunk.Tree, id chunk.NodeID, family, content string) string {
	n := t.Node(id)
	name, ok := captureTables[family][n.Type]
	if !ok {
		return ""
	}
	switch {
	case family == "javascript" && n.Type == "arrow_function":
		if parentType(t, id) != "variable_declarator" {
			return ""
		}
	case family == "lua" && n.Type == "function_definition":
		if parentType(t, id) != "assignment_statement" {
			return ""
		}
	case family == "elixir" && n.Type == "call":
		switch childText(t, id, "identifier", content) {
		case "def", "defp":
			return "definition.function"
		case "defmodule":
			return "definition.class"
		default:
			return ""
		}
	}
	return name
}

// captureTables maps definition node types to capture names, one table per
// grammar family. The walk in collectCaptures treats a match as a stopping
// point, so nested definitions surface only when the engine descends into
// an oversized ancestor.
var captureTables = map[string]map[string]string{
	"go": {
		"function_declaration": "definition.function",
		"method_declaration":   "definition.method",
		"type_declaration":     "definition.class",
	},
	"python": {
		"function_definition": "definition.function",
		"class_definition":    "definition.class",
	},
	"javascript": {
		"function_declaration":   "definition.function",
		"function":               "definition.function",
		"arrow_function":         "definition.function",
		"class_declaration":      "definition.class",
		"class":                  "definition.class",
		"method_definition":      "definition.method",
		"interface_declaration":  "definition.class",
		"enum_declaration":       "definition.class",
		"type_alias_declaration": "definition.class",
	},
	"rust": {
		"function_item": "definition.function",
		"impl_item":     "definition.class",
		"struct_item":   "definition.class",
		"enum_item":     "definition.class",
		"trait_item":    "definition.class",
	},
	"java": {
		"method_declaration":    "definition.method",
		"class_declaration":     "definition.class",
		"interface_declaration": "definition.class",
	},
	"c": {
		"function_definition": "definition.function",
		"struct_specifier":    "definition.class",
		"class_specifier":     "definition.class",
	},
	"ruby": {
		"method":           "definition.function",
		"singleton_method": "definition.method",
		"class":            "definition.class",
		"module":           "definition.class",
	},
	"php": {
		"function_definition":   "definition.function",
		"method_declaration":    "definition.method",
		"class_declaration":     "definition.class",
		"interface_declaration": "definition.class",
		"trait_declaration":     "definition.class",
	},
	"csharp": {
		"method_declaration":    "definition.method",
		"class_declaration":     "definition.class",
		"interface_declaration": "definition.class",
		"struct_declaration":    "definition.class",
		"enum_declaration":      "definition.class",
		"record_declaration":    "definition.class",
	},
	"kotlin": {
		"function_declaration":  "definition.function",
		"class_declaration":     "definition.class",
		"object_declaration":    "definition.class",
		"interface_declaration": "definition.class",
	},
	"swift": {
		"function_declaration":  "definition.function",
		"class_declaration":     "definition.class",
		"struct_declaration":    "definition.class",
		"enum_declaration":      "definition.class",
		"protocol_declaration":  "definition.class",
		"extension_declaration": "definition.class",
	},
	"scala": {
		"function_definition": "definition.function",
		"class_definition":    "definition.class",
		"object_definition":   "definition.class",
		"trait_definition":    "definition.class",
	},
	"lua": {
		"function_declaration": "definition.function",
		"function_definition":  "definition.function",
		"local_function":       "definition.function",
	},
	"sql": {
		"create_function_statement":  "definition.function",
		"create_procedure_statement": "definition.function",
		"create_table_statement":     "definition.class",
		"create_view_statement":      "definition.class",
		"create_trigger_statement":   "definition.function",
		"create_index_statement":     "definition.block",
	},
	"protobuf": {
		"message": "definition.class",
		"enum":    "definition.class",
		"service": "definition.class",
		"rpc":     "definition.method",
	},
	"bash": {
		"function_definition": "definition.function",
		"if_statement":        "definition.block",
		"for_statement":       "definition.block",
		"while_statement":     "definition.block",
		"case_statement":      "definition.block",
	},
	"css": {
		"rule_set":            "definition.block",
		"media_statement":     "definition.block",
		"keyframes_statement": "definition.block",
		"import_statement":    "definition.block",
	},
	"dockerfile": {
		"from_instruction":       "definition.block",
		"run_instruction":        "definition.block",
		"copy_instruction":       "definition.block",
		"add_instruction":        "definition.block",
		"cmd_instruction":        "definition.block",
		"entrypoint_instruction": "definition.block",
		"env_instruction":        "definition.block",
		"expose_instruction":     "definition.block",
		"volume_instruction":     "definition.block",
		"workdir_instruction":    "definition.block",
		"arg_instruction":        "definition.block",
		"label_instruction":      "definition.block",
	},
	"yaml": {
		"block_mapping_pair": "definition.block",
		"block_sequence":     "definition.block",
	},
	"hcl": {
		"block":     "definition.block",
		"attribute": "definition.block",
	},
	"elixir": {
		"call": "definition.function",
	},
	"elm": {
		"value_declaration":      "definition.function",
		"type_declaration":       "definition.class",
		"type_alias_declaration": "definition.class",
	},
	"groovy": {
		"method_declaration":  "definition.function",
		"function_definition": "definition.function",
		"class_definition":    "definition.class",
		"closure":             "definition.function",
	},
	"ocaml": {
		"value_definition":  "definition.function",
		"let_binding":       "definition.function",
		"type_definition":   "definition.class",
		"module_definition": "definition.class",
	},
	"toml": {
		"table":               "definition.block",
		"table_array_element": "definition.block",
		"pair":                "definition.block",
	},
	"cue": {
		"field":          "definition.block",
		"package_clause": "definition.block",
	},
}

// familyFor collapses language aliases to the key shared by the capture
// and name tables.
func familyFor(language string) string {
	switch language {
	case "javascript", "jsx", "typescript", "tsx":
		return "javascript"
	case "c", "h", "cpp", "hpp", "cc", "cxx":
		return "c"
	case "ruby", "rb":
		return "ruby"
	case "csharp", "cs":
		return "csharp"
	case "kotlin", "kt", "kts":
		return "kotlin"
	case "scala", "sc":
		return "scala"
	case "proto", "protobuf":
		return "protobuf"
	case "bash", "sh", "shell":
		return "bash"
	case "yaml", "yml":
		return "yaml"
	case "hcl", "tf", "terraform":
		return "hcl"
	case "elixir", "ex", "exs":
		return "elixir"
	case "groovy", "gradle":
		return "groovy"
	case "ocaml", "ml", "mli":
		return "ocaml"
	}
	return language
}

// annotateNames fills in identifier names for the node types each language
// declares things with. Names feed block identifiers and split-group
// naming; nodes without a recognizable name stay empty.
func annotateNames(t *chunk.Tree, language, content string) {
	extract := nameFunc(familyFor(language))
	if extract == nil {
		return
	}
	for id := chunk.NodeID(0); int(id) < t.Len(); id++ {
		if name := extract(t, id, t.Node(id).Type, content); name != "" {
			t.Node(id).Name = name
		}
	}
}

type nameExtractor func(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string

func nameFunc(family string) nameExtractor {
	switch family {
	case "go":
		return goName
	case "python":
		return pythonName
	case "javascript":
		return jsName
	case "rust":
		return rustName
	case "java":
		return javaName
	case "c":
		return cName
	case "ruby":
		return rubyName
	case "php":
		return phpName
	case "csharp":
		return csharpName
	case "kotlin":
		return kotlinName
	case "swift":
		return swiftName
	case "scala":
		return scalaName
	case "lua":
		return luaName
	case "sql":
		return sqlName
	case "protobuf":
		return protobufName
	case "bash":
		return bashName
	case "css":
		return cssName
	case "dockerfile":
		return dockerfileName
	case "yaml":
		return yamlName
	case "hcl":
		return hclName
	case "elixir":
		return elixirName
	case "elm":
		return elmName
	case "groovy":
		return groovyName
	case "ocaml":
		return ocamlName
	case "toml":
		return tomlName
	case "cue":
		return cueName
	}
	return nil
}

func goName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_declaration":
		return childText(t, id, "identifier", content)
	case "method_declaration":
		return childText(t, id, "field_identifier", content)
	case "type_declaration":
		if spec := childOfType(t, id, "type_spec"); spec != chunk.NoNode {
			return childText(t, spec, "type_identifier", content)
		}
	case "type_spec":
		return childText(t, id, "type_identifier", content)
	}
	return ""
}

func pythonName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_definition", "class_definition":
		return childText(t, id, "identifier", content)
	}
	return ""
}

func jsName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_declaration", "function", "class_declaration", "class":
		return childText(t, id, "identifier", content)
	case "method_definition":
		return childText(t, id, "property_identifier", content)
	case "arrow_function":
		if p := t.Node(id).Parent; p != chunk.NoNode && t.Node(p).Type == "variable_declarator" {
			return childText(t, p, "identifier", content)
		}
	case "interface_declaration", "enum_declaration", "type_alias_declaration":
		if name := childText(t, id, "type_identifier", content); name != "" {
			return name
		}
		return childText(t, id, "identifier", content)
	}
	return ""
}

func rustName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_item":
		return childText(t, id, "identifier", content)
	case "impl_item":
		if name := childText(t, id, "type_identifier", content); name != "" {
			return "impl " + name
		}
	case "struct_item", "enum_item", "trait_item":
		return childText(t, id, "type_identifier", content)
	}
	return ""
}

func javaName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "method_declaration", "class_declaration", "interface_declaration":
		return childText(t, id, "identifier", content)
	}
	return ""
}

func cName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_definition":
		if decl := childOfType(t, id, "function_declarator"); decl != chunk.NoNode {
			if name := childText(t, decl, "identifier", content); name != "" {
				return name
			}
			if name := childText(t, decl, "field_identifier", content); name != "" {
				return name
			}
			return childText(t, decl, "qualified_identifier", content)
		}
	case "struct_specifier", "class_specifier":
		return childText(t, id, "type_identifier", content)
	}
	return ""
}

func rubyName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "method", "singleton_method":
		return childText(t, id, "identifier", content)
	case "class", "module":
		return childText(t, id, "constant", content)
	}
	return ""
}

func phpName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_definition", "method_declaration", "class_declaration",
		"interface_declaration", "trait_declaration":
		return childText(t, id, "name", content)
	}
	return ""
}

func csharpName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "method_declaration", "class_declaration", "interface_declaration",
		"struct_declaration", "enum_declaration", "record_declaration":
		return childText(t, id, "identifier", content)
	}
	return ""
}

func kotlinName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_declaration":
		return childText(t, id, "simple_identifier", content)
	case "class_declaration", "object_declaration", "interface_declaration":
		return childText(t, id, "type_identifier", content)
	}
	return ""
}

func swiftName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_declaration":
		return childText(t, id, "simple_identifier", content)
	case "class_declaration", "struct_declaration", "enum_declaration", "protocol_declaration":
		return childText(t, id, "type_identifier", content)
	case "extension_declaration":
		if name := childText(t, id, "type_identifier", content); name != "" {
			return "extension " + name
		}
	}
	return ""
}

func scalaName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_definition", "class_definition", "object_definition", "trait_definition":
		return childText(t, id, "identifier", content)
	}
	return ""
}

func luaName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_declaration", "local_function":
		return childText(t, id, "identifier", content)
	case "function_definition":
		if p := t.Node(id).Parent; p != chunk.NoNode && t.Node(p).Type == "assignment_statement" {
			if vars := childOfType(t, p, "variable_list"); vars != chunk.NoNode {
				return childText(t, vars, "identifier", content)
			}
		}
	}
	return ""
}

func sqlName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "create_function_statement", "create_procedure_statement",
		"create_view_statement", "create_trigger_statement", "create_index_statement":
		return childText(t, id, "identifier", content)
	case "create_table_statement":
		if name := childText(t, id, "identifier", content); name != "" {
			return name
		}
		return childText(t, id, "object_reference", content)
	}
	return ""
}

func protobufName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	var primary string
	switch nodeType {
	case "message":
		primary = "message_name"
	case "enum":
		primary = "enum_name"
	case "service":
		primary = "service_name"
	case "rpc":
		primary = "rpc_name"
	default:
		return ""
	}
	if name := childText(t, id, primary, content); name != "" {
		return name
	}
	return childText(t, id, "identifier", content)
}

func bashName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "function_definition":
		return childText(t, id, "word", content)
	case "if_statement", "for_statement", "while_statement", "case_statement":
		return nodeType
	}
	return ""
}

func cssName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "rule_set":
		selector := childText(t, id, "selectors", content)
		if selector == "" {
			selector = childText(t, id, "selector_list", content)
		}
		return truncateName(selector)
	case "media_statement":
		return "@media"
	case "keyframes_statement":
		return "@keyframes " + childText(t, id, "keyframes_name", content)
	case "import_statement":
		return "@import"
	}
	return ""
}

func dockerfileName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "from_instruction":
		return "FROM " + childText(t, id, "image_spec", content)
	case "run_instruction":
		return "RUN"
	case "copy_instruction":
		return "COPY"
	case "add_instruction":
		return "ADD"
	case "cmd_instruction":
		return "CMD"
	case "entrypoint_instruction":
		return "ENTRYPOINT"
	case "env_instruction":
		return "ENV"
	case "expose_instruction":
		return "EXPOSE"
	case "volume_instruction":
		return "VOLUME"
	case "workdir_instruction":
		return "WORKDIR"
	case "arg_instruction":
		return "ARG"
	case "label_instruction":
		return "LABEL"
	}
	return ""
}

func yamlName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "block_mapping_pair":
		key := childText(t, id, "flow_node", content)
		if key == "" {
			if children := t.Node(id).Children; len(children) > 0 {
				key = nodeText(t, children[0], content)
			}
		}
		return truncateName(key)
	case "block_sequence":
		return "sequence"
	}
	return ""
}

func hclName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "block":
		// resource "type" "name" { ... } flattens to `resource type.name`.
		blockType := ""
		blockName := ""
		for _, c := range t.Node(id).Children {
			switch t.Node(c).Type {
			case "identifier":
				if blockType == "" {
					blockType = nodeText(t, c, content)
				}
			case "string_lit":
				text := strings.Trim(nodeText(t, c, content), "\"")
				if blockName == "" {
					blockName = text
				} else {
					blockName = blockName + "." + text
				}
			}
		}
		if blockName != "" {
			return blockType + " " + blockName
		}
		return blockType
	case "attribute":
		return childText(t, id, "identifier", content)
	}
	return ""
}

func elixirName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	if nodeType != "call" {
		return ""
	}
	switch childText(t, id, "identifier", content) {
	case "def", "defp":
		if args := childOfType(t, id, "arguments"); args != chunk.NoNode {
			if name := childText(t, args, "identifier", content); name != "" {
				return name
			}
			if call := childOfType(t, args, "call"); call != chunk.NoNode {
				return childText(t, call, "identifier", content)
			}
		}
	case "defmodule":
		if args := childOfType(t, id, "arguments"); args != chunk.NoNode {
			if alias := childOfType(t, args, "alias"); alias != chunk.NoNode {
				return nodeText(t, alias, content)
			}
		}
	}
	return ""
}

func elmName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "value_declaration":
		return childText(t, id, "lower_case_identifier", content)
	case "type_declaration", "type_alias_declaration":
		return childText(t, id, "upper_case_identifier", content)
	}
	return ""
}

func groovyName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "method_declaration", "function_definition", "class_definition":
		return childText(t, id, "identifier", content)
	case "closure":
		return "closure"
	}
	return ""
}

func ocamlName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "let_binding", "value_definition":
		if name := childText(t, id, "value_name", content); name != "" {
			return name
		}
		return childText(t, id, "identifier", content)
	case "type_definition":
		if name := childText(t, id, "type_constructor", content); name != "" {
			return name
		}
		return childText(t, id, "identifier", content)
	case "module_definition":
		return childText(t, id, "module_name", content)
	}
	return ""
}

func tomlName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "table", "table_array_element":
		if key := childText(t, id, "dotted_key", content); key != "" {
			return key
		}
		return childText(t, id, "bare_key", content)
	case "pair":
		if key := childText(t, id, "bare_key", content); key != "" {
			return key
		}
		return childText(t, id, "quoted_key", content)
	}
	return ""
}

func cueName(t *chunk.Tree, id chunk.NodeID, nodeType, content string) string {
	switch nodeType {
	case "field":
		if label := childText(t, id, "identifier", content); label != "" {
			return label
		}
		return childText(t, id, "string", content)
	case "package_clause":
		return "package " + childText(t, id, "identifier", content)
	}
	return ""
}

// childOfType returns the first direct child with the given type.
func childOfType(t *chunk.Tree, id chunk.NodeID, childType string) chunk.NodeID {
	for _, c := range t.Node(id).Children {
		if t.Node(c).Type == childType {
			return c
		}
	}
	return chunk.NoNode
}

// childText returns the text of the first direct child with the given type.
func childText(t *chunk.Tree, id chunk.NodeID, childType, content string) string {
	c := childOfType(t, id, childType)
	if c == chunk.NoNode {
		return ""
	}
	return nodeText(t, c, content)
}

func nodeText(t *chunk.Tree, id chunk.NodeID, content string) string {
	n := t.Node(id)
	if n.StartByte < 0 || n.EndByte > len(content) || n.EndByte < n.StartByte {
		return ""
	}
	return content[n.StartByte:n.EndByte]
}

func parentType(t *chunk.Tree, id chunk.NodeID) string {
	p := t.Node(id).Parent
	if p == chunk.NoNode {
		return ""
	}
	return t.Node(p).Type
}

func truncateName(name string) string {
	if len(name) > 50 {
		return name[:50] + "..."
	}
	return name
}
