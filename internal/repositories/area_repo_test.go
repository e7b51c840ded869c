package repositories

import (
	"context"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAreaRepository_List(t *testing.T) {
	tests := []struct {
		name     string
		areaType string
		query    string
		args     []any
	}{
		{"all", "", "SELECT id, name, type, dataset_id FROM areas ORDER BY name ASC, id ASC", nil},
		{"by type", "London Borough", "FROM areas WHERE type = $1 ORDER BY", []any{"London Borough"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			expect := mock.ExpectQuery(regexp.QuoteMeta(tt.query))
			if tt.args != nil {
				expect = expect.WithArgs(tt.args...)
			}
			expect.WillReturnRows(pgxmock.NewRows([]string{"id", "name", "type", "dataset_id"}).
				AddRow("a1", "Camden", "London Borough", ptr(3)).
				AddRow("a2", "Hackney", "London Borough", nil))

			areas, err := NewAreaRepository(mock).List(context.Background(), tt.areaType)
			require.NoError(t, err)
			require.Len(t, areas, 2)
			assert.Equal(t, 3, *areas[0].DatasetID)
			assert.Nil(t, areas[1].DatasetID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
