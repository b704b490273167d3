package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ParseRust_ReturnsAST(t *testing.T) {
	source := []byte(`
fn hello() {
    println!("hi");
}

struct Point {
    x: i32,
    y: i32,
}
`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "rust")
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, "rust", tree.Language)

	funcs := tree.Root.FindAllByType("function_item")
	assert.Len(t, funcs, 1)
	structs := tree.Root.FindAllByType("struct_item")
	assert.Len(t, structs, 1)
}

func TestParser_ParsePython_ReturnsAST(t *testing.T) {
	source := []byte(`
def greet(name):
    return "hello " + name


class Greeter:
    def greet(self):
        pass
`)
	parser := NewParser()
	defer parser.Close()

	tree, err := parser.Parse(context.Background(), source, "python")
	require.NoError(t, err)

	funcs := tree.Root.FindAllByType("function_definition")
	assert.Len(t, funcs, 2)
	classes := tree.Root.FindAllByType("class_definition")
	assert.Len(t, classes, 1)
}

func TestParser_UnsupportedLanguage_ReturnsError(t *testing.T) {
	parser := NewParser()
	defer parser.Close()

	_, err := parser.Parse(context.Background(), []byte("x"), "cobol")
	require.Error(t, err)
}

func TestNode_GetContent_OutOfRange(t *testing.T) {
	n := &Node{StartByte: 5, EndByte: 2}
	assert.Equal(t, "", n.GetContent([]byte("hello world")))
}

func findNodes(root *Node, nodeType string) []*Node {
	return root.FindAllByType(nodeType)
}
