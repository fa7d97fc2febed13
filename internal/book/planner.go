package book

import (
	"github.com/fablepress/backend/internal/domain"
)

// Page numbers never shown in the customer-facing flow (cover interior and
// the imprint page).
var defaultHiddenPages = map[int]bool{1: true, 23: true}

// Policy resolves the ordered page numbers a stage covers. Policies are
// pure functions of the manifest: same manifest, same stage, same plan.
type Policy interface {
	PageNums(m *Manifest) []int
}

// AvailabilityPolicy selects every page whose availability flag for the
// stage is set, in manifest order.
type AvailabilityPolicy struct {
	Stage domain.Stage
}

func (p AvailabilityPolicy) PageNums(m *Manifest) []int {
	nums := make([]int, 0, len(m.Pages))
	for _, page := range m.Pages {
		if page.Availability.ForStage(p.Stage) {
			nums = append(nums, page.PageNum)
		}
	}
	return nums
}

// FirstNPolicy selects the first N front-visible pages out of a base
// policy's plan. Prepay uses it to show the first spread plus one page.
type FirstNPolicy struct {
	Base   Policy
	N      int
	Hidden map[int]bool
}

func (p FirstNPolicy) PageNums(m *Manifest) []int {
	hidden := p.Hidden
	if hidden == nil {
		hidden = defaultHiddenPages
	}

	nums := make([]int, 0, p.N)
	for _, n := range p.Base.PageNums(m) {
		if hidden[n] {
			continue
		}
		nums = append(nums, n)
		if len(nums) == p.N {
			break
		}
	}
	return nums
}

// Planner maps a stage to its page plan.
type Planner struct {
	prepay  Policy
	postpay Policy
}

// NewPlanner builds a planner with explicit per-stage policies.
func NewPlanner(prepay, postpay Policy) *Planner {
	return &Planner{prepay: prepay, postpay: postpay}
}

// DefaultPlanner reproduces the product rule: prepay covers the first
// spread plus the next page (3 pages) of the front-visible postpay plan,
// postpay covers everything its availability flags allow.
func DefaultPlanner() *Planner {
	postpay := AvailabilityPolicy{Stage: domain.StagePostpay}
	return NewPlanner(
		FirstNPolicy{Base: postpay, N: 3},
		postpay,
	)
}

// PageNums resolves the ordered page numbers for a stage.
func (p *Planner) PageNums(m *Manifest, stage domain.Stage) []int {
	if stage == domain.StagePrepay {
		return p.prepay.PageNums(m)
	}
	return p.postpay.PageNums(m)
}

// Pages resolves the page specs for a stage, in plan order.
func (p *Planner) Pages(m *Manifest, stage domain.Stage) []Page {
	nums := p.PageNums(m, stage)
	pages := make([]Page, 0, len(nums))
	for _, n := range nums {
		if page, ok := m.PageByNum(n); ok {
			pages = append(pages, *page)
		}
	}
	return pages
}

// StageHasFaceSwap reports whether any planned page needs face transfer.
// Text-only stages skip the GPU unit entirely.
func (p *Planner) StageHasFaceSwap(m *Manifest, stage domain.Stage) bool {
	for _, page := range p.Pages(m, stage) {
		if page.NeedsFaceSwap {
			return true
		}
	}
	return false
}

// FrontVisiblePageNums is the stage plan with hidden pages removed, used
// for customer previews.
func (p *Planner) FrontVisiblePageNums(m *Manifest, stage domain.Stage) []int {
	nums := make([]int, 0)
	for _, n := range p.PageNums(m, stage) {
		if !defaultHiddenPages[n] {
			nums = append(nums, n)
		}
	}
	return nums
}
