package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablepress/backend/internal/domain"
)

// storybook returns a 24-page manifest shaped like the production
// templates: page 1 and 23 hidden, face swaps on the odd story pages.
func storybook() *Manifest {
	m := &Manifest{
		Slug:   "space-adventure",
		Output: Output{DPI: 300, PageSizePx: 1024},
	}
	for n := 1; n <= 24; n++ {
		page := Page{
			PageNum:       n,
			BaseKey:       "templates/space-adventure/base.png",
			NeedsFaceSwap: n%2 == 1 && n != 1 && n != 23,
			Availability:  Availability{Prepay: true, Postpay: true},
		}
		m.Pages = append(m.Pages, page)
	}
	return m
}

func TestAvailabilityPolicy_PageNums(t *testing.T) {
	m := storybook()
	m.Pages[4].Availability = Availability{Prepay: false, Postpay: false}

	nums := AvailabilityPolicy{Stage: domain.StagePostpay}.PageNums(m)

	assert.Len(t, nums, 23)
	assert.NotContains(t, nums, 5)
	assert.Equal(t, 1, nums[0])
}

func TestFirstNPolicy_SkipsHiddenPages(t *testing.T) {
	m := storybook()

	nums := FirstNPolicy{
		Base: AvailabilityPolicy{Stage: domain.StagePostpay},
		N:    3,
	}.PageNums(m)

	// Page 1 is hidden, so the plan starts at page 2.
	assert.Equal(t, []int{2, 3, 4}, nums)
}

func TestFirstNPolicy_CustomHiddenSet(t *testing.T) {
	m := storybook()

	nums := FirstNPolicy{
		Base:   AvailabilityPolicy{Stage: domain.StagePostpay},
		N:      2,
		Hidden: map[int]bool{2: true, 3: true},
	}.PageNums(m)

	assert.Equal(t, []int{1, 4}, nums)
}

func TestDefaultPlanner_StagePlans(t *testing.T) {
	m := storybook()
	planner := DefaultPlanner()

	prepay := planner.PageNums(m, domain.StagePrepay)
	postpay := planner.PageNums(m, domain.StagePostpay)

	assert.Equal(t, []int{2, 3, 4}, prepay)
	assert.Len(t, postpay, 24)

	// Plans are deterministic across calls.
	assert.Equal(t, prepay, planner.PageNums(m, domain.StagePrepay))
	assert.Equal(t, postpay, planner.PageNums(m, domain.StagePostpay))
}

func TestPlanner_Pages(t *testing.T) {
	m := storybook()
	planner := DefaultPlanner()

	pages := planner.Pages(m, domain.StagePrepay)

	require.Len(t, pages, 3)
	assert.Equal(t, 2, pages[0].PageNum)
	assert.False(t, pages[0].NeedsFaceSwap)
	assert.True(t, pages[1].NeedsFaceSwap)
}

func TestPlanner_StageHasFaceSwap(t *testing.T) {
	m := storybook()
	planner := DefaultPlanner()

	assert.True(t, planner.StageHasFaceSwap(m, domain.StagePrepay))

	for i := range m.Pages {
		m.Pages[i].NeedsFaceSwap = false
	}
	assert.False(t, planner.StageHasFaceSwap(m, domain.StagePrepay))
	assert.False(t, planner.StageHasFaceSwap(m, domain.StagePostpay))
}

func TestPlanner_FrontVisiblePageNums(t *testing.T) {
	m := storybook()
	planner := DefaultPlanner()

	nums := planner.FrontVisiblePageNums(m, domain.StagePostpay)

	assert.NotContains(t, nums, 1)
	assert.NotContains(t, nums, 23)
	assert.Len(t, nums, 22)
}
