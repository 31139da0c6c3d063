package claude

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateExportRangeRejectsOver180Days(t *testing.T) {
	from := time.Now().Add(-200 * 24 * time.Hour)
	until := time.Now()
	assert.ErrorIs(t, validateExportRange(from, until), ErrRangeTooLarge)
}

func TestValidateExportRangeAllowsExactly180Days(t *testing.T) {
	until := time.Now()
	from := until.Add(-maxExportRangeDays * 24 * time.Hour)
	assert.NoError(t, validateExportRange(from, until))
}

func TestValidateExportRangeAllowsShortRange(t *testing.T) {
	until := time.Now()
	from := until.Add(-7 * 24 * time.Hour)
	assert.NoError(t, validateExportRange(from, until))
}
