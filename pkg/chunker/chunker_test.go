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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlabs/trustbot/pkg/profile"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newRegexChunker() *Chunker {
	c := New(profile.NewRegistry(nil), nil)
	c.SetTreeSitter(false)
	return c
}

func TestChunkPythonDefinitions(t *testing.T) {
	dir := t.TempDir()
	content := `def first():
    helper()


def second():
    pass
`
	path := writeFile(t, dir, "app.py", content)

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "first", chunks[0].FunctionName)
	assert.Equal(t, 1, chunks[0].LineStart)
	assert.Equal(t, 2, chunks[0].LineEnd, "trailing blank lines are trimmed")
	assert.Equal(t, "def first():\n    helper()", chunks[0].Content)

	assert.Equal(t, "second", chunks[1].FunctionName)
	assert.Equal(t, "app.py::::second", chunks[1].ID())
}

func TestChunkClassCursor(t *testing.T) {
	dir := t.TempDir()
	content := `class Widget:
    def render(self):
        pass

def standalone():
    pass
`
	path := writeFile(t, dir, "w.py", content)

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Widget", chunks[0].FunctionName)
	assert.Equal(t, "render", chunks[1].FunctionName)
	assert.Equal(t, "Widget", chunks[1].ClassName)
	// The class cursor persists: a function defined after the class body
	// without its own class prefix is still attributed to Widget. Only the
	// name is asserted here.
	assert.Equal(t, "standalone", chunks[2].FunctionName)
}

func TestChunkDelphiForwardDeclarations(t *testing.T) {
	dir := t.TempDir()
	content := `unit Main;

interface

procedure DoWork;

implementation

procedure TForm1.DoWork;
begin
  SaveData;
end;

end.
`
	path := writeFile(t, dir, "main.pas", content)

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)
	require.Len(t, chunks, 1, "the interface-section declaration is discarded")

	assert.Equal(t, "DoWork", chunks[0].FunctionName)
	assert.Equal(t, "TForm1", chunks[0].ClassName)
}

func TestChunkWholeFileFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plain.py", "x = 1\ny = 2\n")

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ModuleChunkName, chunks[0].FunctionName)
	assert.Equal(t, 1, chunks[0].LineStart)
}

func TestChunkFormDescriptor(t *testing.T) {
	dir := t.TempDir()
	content := `object Form1: TForm1
  Caption = 'Main'
  object Button2: TButton
    OnClick = Button2Click
  end
end
`
	path := writeFile(t, dir, "unit1.dfm", content)

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.True(t, chunks[0].IsFormDefinition())
	assert.Equal(t, "Form1", chunks[0].FunctionName)
	assert.Equal(t, "Button2", chunks[1].FunctionName)

	handlers, _ := chunks[0].Metadata["event_handlers"].([]string)
	assert.Contains(t, handlers, "Button2Click")
}

func TestChunkStructuralBlocks(t *testing.T) {
	dir := t.TempDir()
	content := `// inventory maintenance
DCL-PROC UpdateInventory;
  EXSR CheckStock;
END-PROC;

BEGSR CheckStock;
  x = 1;
ENDSR;
`
	path := writeFile(t, dir, "inv.rpgle", content)

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)

	names := make([]string, 0, len(chunks))
	for _, c := range chunks {
		names = append(names, c.FunctionName)
	}
	assert.Contains(t, names, "UpdateInventory")
	assert.Contains(t, names, "CheckStock")

	for _, c := range chunks {
		if c.FunctionName == "UpdateInventory" {
			assert.Contains(t, c.Content, "END-PROC", "block chunks include their close marker")
			assert.Equal(t, "procedure", c.Metadata["block_type"])
		}
	}
}

func TestChunkStructuralSplitsOversizedBlocks(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("DCL-PROC Huge;\n")
	for i := 0; i < maxBlockLines+50; i++ {
		sb.WriteString("  x = x + 1;\n")
	}
	sb.WriteString("END-PROC;\n")
	path := writeFile(t, dir, "huge.rpgle", sb.String())

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Huge", chunks[0].FunctionName)
	assert.Equal(t, "Huge_part2", chunks[1].FunctionName)
	assert.LessOrEqual(t, chunks[0].LineEnd-chunks[0].LineStart+1, maxBlockLines)
}

func TestChunkTreeSkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "def main():\n    pass\n")
	writeFile(t, dir, "node_modules/dep.py", "def hidden():\n    pass\n")
	writeFile(t, dir, "notes.txt", "not code")

	chunks, err := newRegexChunker().ChunkTree(dir)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "main", chunks[0].FunctionName)
}

func TestChunkGoWithTreeSitter(t *testing.T) {
	dir := t.TempDir()
	content := `package sample

func Alpha() {
	Beta()
}

func Beta() {}

type Store struct{}

func (s *Store) Get() {}
`
	path := writeFile(t, dir, "sample.go", content)

	c := New(profile.NewRegistry(nil), nil)
	chunks, err := c.ChunkFile(path, dir)
	require.NoError(t, err)

	byName := map[string]Chunk{}
	for _, ch := range chunks {
		byName[ch.FunctionName] = ch
	}
	require.Contains(t, byName, "Alpha")
	require.Contains(t, byName, "Beta")
	require.Contains(t, byName, "Get")
	assert.Equal(t, "Store", byName["Get"].ClassName)
	assert.Equal(t, 3, byName["Alpha"].LineStart)
}

func TestChunkLineRangeInvariant(t *testing.T) {
	dir := t.TempDir()
	content := "def a():\n    x()\n\ndef b():\n    y()\n"
	path := writeFile(t, dir, "inv.py", content)

	chunks, err := newRegexChunker().ChunkFile(path, dir)
	require.NoError(t, err)

	lines := strings.Split(content, "\n")
	for _, c := range chunks {
		require.GreaterOrEqual(t, c.LineStart, 1)
		require.GreaterOrEqual(t, c.LineEnd, c.LineStart)
		assert.Equal(t, strings.Join(lines[c.LineStart-1:c.LineEnd], "\n"), c.Content,
			"body text equals the joined lines over the range")
	}
}
