// Package debug formats kernel state for inspection tools.
package debug

import (
	"bytes"
	"fmt"
	"io"

	"github.com/diogenesvanzella/nanvix/common"
)

func flagString(f common.BufferFlags) string {
	buf := bytes.NewBuffer(nil)
	put := func(bit common.BufferFlags, name string) {
		if f&bit != 0 {
			if buf.Len() > 0 {
				buf.WriteByte('|')
			}
			buf.WriteString(name)
		}
	}
	put(common.BufferValid, "VALID")
	put(common.BufferDirty, "DIRTY")
	put(common.BufferLocked, "LOCKED")
	put(common.BufferBusy, "BUSY")
	if buf.Len() == 0 {
		return "-"
	}
	return buf.String()
}

// DumpBlock writes a buffer's identity, flags and the first bytes of its
// data as a hex dump.
func DumpBlock(w io.Writer, b *common.Block) {
	fmt.Fprintf(w, "buffer (%d, %d) %s\n", b.Dev, b.Num, flagString(b.Flags))
	n := len(b.Data)
	if n > 64 {
		n = 64
	}
	for i := 0; i < n; i += 16 {
		end := i + 16
		if end > n {
			end = n
		}
		fmt.Fprintf(w, "%08x  % x\n", i, b.Data[i:end])
	}
}

// DumpProcess writes one line describing a process table entry.
func DumpProcess(w io.Writer, p *common.Process) {
	fmt.Fprintf(w, "%-12s %-8s counter=%-4d tickets=%-4d compensation=%-4d nice=%d\n",
		p.Name, p.State, p.Counter, p.Tickets, p.Compensation, p.Nice)
}
