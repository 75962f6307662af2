// Copyright 2026 TrustLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// chunkWithTreeSitter chunks grammar-backed languages via the AST. Returns
// ok=false when the language has no grammar or parsing fails, which sends
// the caller down the regex path.
func chunkWithTreeSitter(rel, lang, content string) ([]Chunk, bool) {
	var language *sitter.Language
	switch lang {
	case "go":
		language = golang.GetLanguage()
	case "python":
		language = python.GetLanguage()
	default:
		return nil, false
	}

	parser := sitter.NewParser()
	parser.SetLanguage(language)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(content))
	if err != nil {
		return nil, false
	}
	defer tree.Close()

	lines := strings.Split(content, "\n")
	var chunks []Chunk

	emit := func(node *sitter.Node, name, class string) {
		start := int(node.StartPoint().Row) + 1
		end := int(node.EndPoint().Row) + 1
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			FilePath:     rel,
			Language:     lang,
			FunctionName: name,
			ClassName:    class,
			LineStart:    start,
			LineEnd:      end,
			Content:      strings.Join(lines[start-1:end], "\n"),
		})
	}

	src := []byte(content)
	switch lang {
	case "go":
		walkGoTree(tree.RootNode(), src, emit)
	case "python":
		walkPythonTree(tree.RootNode(), src, "", emit)
	}

	if len(chunks) == 0 {
		return []Chunk{wholeFileChunk(rel, lang, content)}, true
	}
	return chunks, true
}

func walkGoTree(node *sitter.Node, src []byte, emit func(*sitter.Node, string, string)) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_declaration":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				emit(child, nameNode.Content(src), "")
			}
		case "method_declaration":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			emit(child, nameNode.Content(src), goReceiverType(child, src))
		}
	}
}

// goReceiverType extracts the base type name from a method receiver,
// stripping the pointer star.
func goReceiverType(method *sitter.Node, src []byte) string {
	receiver := method.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	text := receiver.Content(src)
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "*")
}

func walkPythonTree(node *sitter.Node, src []byte, class string, emit func(*sitter.Node, string, string)) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				emit(child, nameNode.Content(src), class)
			}
		case "class_definition":
			className := class
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				className = nameNode.Content(src)
			}
			if body := child.ChildByFieldName("body"); body != nil {
				walkPythonTree(body, src, className, emit)
			}
		case "decorated_definition":
			walkPythonTree(child, src, class, emit)
		default:
			// Module-level blocks (if __name__ == ...) can nest defs.
			if child.NamedChildCount() > 0 && child.Type() != "expression_statement" {
				walkPythonTree(child, src, class, emit)
			}
		}
	}
}
