// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// Mnemosyne - FFmpeg 批量转码工具

package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/ZSC714725/mnemosyne/internal/batch"
)

// Report writes the end-of-run summary.
func Report(w io.Writer, sum batch.RunSummary) error {
	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, " Run %s complete\n", sum.RunID)
	fmt.Fprintf(&b, " Files:   %d (success %d, failed %d)\n", sum.Total, sum.Succeeded, sum.Failed)
	fmt.Fprintf(&b, " Elapsed: %s\n", FormatDuration(sum.Elapsed))
	fmt.Fprintf(&b, " Size:    %s -> %s\n", FormatBytes(sum.InputBytes), FormatBytes(sum.OutputBytes))
	fmt.Fprintf(&b, " Saved:   %s\n", FormatBytes(sum.Saved()))
	b.WriteString(strings.Repeat("=", 50) + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}
