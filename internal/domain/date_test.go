package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDate(t *testing.T) {
	t.Run("valid date", func(t *testing.T) {
		d, err := ComposeDate("1998", "12", "07")

		require.NoError(t, err)
		assert.Equal(t, CalendarDate{Year: 1998, Month: time.December, Day: 7}, d)
		assert.Equal(t, "1998-12-07", d.String())
	})

	t.Run("leap day in leap year", func(t *testing.T) {
		d, err := ComposeDate("2020", "02", "29")

		require.NoError(t, err)
		assert.Equal(t, "2020-02-29", d.String())
	})

	t.Run("surrounding whitespace is tolerated", func(t *testing.T) {
		d, err := ComposeDate(" 2001 ", "1", " 9")

		require.NoError(t, err)
		assert.Equal(t, "2001-01-09", d.String())
	})

	failures := []struct {
		name             string
		year, month, day string
		reason           string
	}{
		{"leap day in common year", "2021", "02", "29", "not a calendar date"},
		{"february 30", "2020", "02", "30", "not a calendar date"},
		{"april 31", "2020", "04", "31", "not a calendar date"},
		{"day zero", "2020", "04", "0", "not a calendar date"},
		{"month 13", "2020", "13", "01", "month out of range"},
		{"month zero", "2020", "0", "01", "month out of range"},
		{"missing year", "", "01", "01", "year missing"},
		{"missing day", "2020", "01", "", "day missing"},
		{"textual month", "2020", "Jan", "01", `month "Jan" is not numeric`},
		{"negative day", "2020", "01", "-3", `day "-3" is not numeric`},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComposeDate(tc.year, tc.month, tc.day)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDateComposition))

			var dce *DateCompositionError
			require.True(t, errors.As(err, &dce))
			assert.Equal(t, tc.reason, dce.Reason)
			assert.Equal(t, tc.year, dce.Year)
			assert.Equal(t, tc.month, dce.Month)
			assert.Equal(t, tc.day, dce.Day)
		})
	}
}

func TestComposeDateParts(t *testing.T) {
	s := func(v string) *string { return &v }

	t.Run("nil parts", func(t *testing.T) {
		_, err := ComposeDateParts(nil)
		assert.ErrorIs(t, err, ErrDateComposition)
	})

	t.Run("missing month", func(t *testing.T) {
		_, err := ComposeDateParts(&DateParts{Year: s("2001"), Day: s("3")})
		assert.ErrorIs(t, err, ErrDateComposition)
	})

	t.Run("complete parts", func(t *testing.T) {
		d, err := ComposeDateParts(&DateParts{Year: s("2001"), Month: s("03"), Day: s("14")})
		require.NoError(t, err)
		assert.Equal(t, "2001-03-14", d.String())
	})
}

func TestCalendarDate_JSON(t *testing.T) {
	d := CalendarDate{Year: 2004, Month: time.July, Day: 1}

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2004-07-01"`, string(data))

	var back CalendarDate
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)

	assert.Error(t, json.Unmarshal([]byte(`"2004-13-01"`), &back))
	assert.Error(t, json.Unmarshal([]byte(`20040701`), &back))
}

func TestCalendarDate_Time(t *testing.T) {
	d := CalendarDate{Year: 1999, Month: time.March, Day: 2}
	assert.Equal(t, time.Date(1999, time.March, 2, 0, 0, 0, 0, time.UTC), d.Time())
}
