// Package ui prints user-facing progress lines: status markers, the run
// banner and the verdict. Styling uses a lipgloss renderer bound to the
// destination writer, so colors are dropped when it is not a terminal.
package ui
