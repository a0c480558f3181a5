package outline

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sample = `Usko ja epäily
1. Usko
  1.1. Alku
1.2.
2 Epäily
10. Loppu`

func TestParse(t *testing.T) {
	got := Parse(sample)
	assert.Equal(t, []Header{
		{Number: "1", Title: "Usko"},
		{Number: "1.1", Title: "Alku"},
		{Number: "1.2", Title: ""},
		{Number: "2", Title: "Epäily"},
		{Number: "10", Title: "Loppu"},
	}, got)
	assert.Equal(t, 2, got[1].Depth())
}

func TestTheme(t *testing.T) {
	cases := []struct {
		section string
		want    string
		ok      bool
	}{
		{"1.", "Usko", true},
		{"1", "Usko", true},
		{"1.1.", "Alku", true},
		{"1.2.", "", false},
		{"3.", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Theme(sample, tc.section)
		assert.Equal(t, tc.want, got, tc.section)
		assert.Equal(t, tc.ok, ok, tc.section)
	}
}

func TestThemeFollowsEditedOutline(t *testing.T) {
	edited := "1. Usko\n1.1. Uusi alku"
	got, ok := Theme(edited, "1.1.")
	assert.True(t, ok)
	assert.Equal(t, "Uusi alku", got)
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 1, Depth("1."))
	assert.Equal(t, 2, Depth("2.1"))
	assert.Equal(t, 3, Depth("2.1.3."))
}

func TestKeyAndLess(t *testing.T) {
	assert.Equal(t, []int{10, 2, 1}, Key("10.2.1"))
	assert.Equal(t, []int{math.MaxInt}, Key("x.1"))

	in := []string{"10.", "2.1.", "x", "1.", "2.", "1.10.", "1.2."}
	sort.Slice(in, func(i, j int) bool { return Less(in[i], in[j]) })
	assert.Equal(t, []string{"1.", "1.2.", "1.10.", "2.", "2.1.", "10.", "x"}, in)
}
