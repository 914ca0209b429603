package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractCat handles OpenDocument text and RTF; cat sniffs the format from the bytes.
func extractCat(data []byte) (string, error) {
	text, err := cat.FromBytes(data)
	if err != nil {
		return "", fmt.Errorf("extract document: %w", err)
	}
	return text, nil
}
