package model

import "testing"

func TestChunk_FileKeepsFullID(t *testing.T) {
	a := &Chunk{ID: "0123456789abcdef" + "aa", Ext: ".js"}
	b := &Chunk{ID: "0123456789abcdef" + "bb", Ext: ".js"}
	if a.File() == b.File() {
		t.Fatalf("chunks with a common id prefix share %q", a.File())
	}
	if got := a.File(); got != "0123456789abcdefaa.js" {
		t.Fatalf("File() = %q", got)
	}
}
