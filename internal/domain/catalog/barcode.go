package catalog

import "fmt"

// BarcodeCandidate returns the n-th collision-avoiding variant of base:
// base, base(1), base(2), ...
func BarcodeCandidate(base string, n int) string {
	if n <= 0 {
		return base
	}
	return fmt.Sprintf("%s(%d)", base, n)
}

// DuplicatedFromNote is the history note of a duplicated product's first movement
func DuplicatedFromNote(source string) string {
	return "duplicated from " + source
}

// TransferredFromNote is the history note of a transferred product's first movement
func TransferredFromNote(sourceTenant, sourceBarcode string) string {
	return fmt.Sprintf("transferred from %s/%s", sourceTenant, sourceBarcode)
}
