package trace

import (
	"testing"

	"github.com/josh-project/josh-filter/modules/term"
)

func TestDebug(t *testing.T) {
	term.StderrLevel = term.Level256
	d := NewDebuger(true)
	d.DbgPrint("jack")
}
