package document

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func propertyEvents(sizes []int) (*Repository[testEvent, *testEvent], error) {
	repo, err := New[testEvent](testEventShape, Config{Executor: NewMemoryExecutor(), Clock: tickingClock(baseTime)})
	if err != nil {
		return nil, err
	}
	docs := make([]*testEvent, len(sizes))
	for i, n := range sizes {
		docs[i] = &testEvent{
			Title:        fmt.Sprintf("e%03d", i),
			Status:       []string{"scheduled", "canceled", "completed"}[n%3],
			MaxAttendees: n,
			StartTime:    baseTime.Add(time.Duration(n) * time.Minute),
		}
	}
	if _, err := repo.AddMany(context.Background(), docs); err != nil {
		return nil, err
	}
	return repo, nil
}

func TestProperty_RangeFilterMatchesBruteForce(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("count under a range equals a linear scan", prop.ForAll(
		func(sizes []int, lo, hi int) bool {
			repo, err := propertyEvents(sizes)
			if err != nil {
				return false
			}
			where := Compile(testEventFilters{MaxAttendees: &RangeFilter[int]{Min: &lo, Max: &hi}}, testEventShape)
			got, err := repo.Count(context.Background(), where)
			if err != nil {
				return false
			}
			var want int64
			for _, n := range sizes {
				if n >= lo && n <= hi {
					want++
				}
			}
			return got == want
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(-10, 110),
		gen.IntRange(-10, 110),
	))

	properties.Property("time ranges behave like integer ranges", prop.ForAll(
		func(sizes []int, lo int) bool {
			repo, err := propertyEvents(sizes)
			if err != nil {
				return false
			}
			from := baseTime.Add(time.Duration(lo) * time.Minute)
			where := Compile(testEventFilters{StartTime: AtLeast(from)}, testEventShape)
			got, err := repo.Count(context.Background(), where)
			if err != nil {
				return false
			}
			var want int64
			for _, n := range sizes {
				if n >= lo {
					want++
				}
			}
			return got == want
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_CountAgreesWithGetMany(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("Count(where) == len(GetMany(where))", prop.ForAll(
		func(sizes []int, status string, min int) bool {
			repo, err := propertyEvents(sizes)
			if err != nil {
				return false
			}
			ctx := context.Background()
			where := AllOf(Eq("status", status), Gte("max_attendees", min))
			n, err := repo.Count(ctx, where)
			if err != nil {
				return false
			}
			docs, err := repo.GetMany(ctx, FindOptions{Where: where})
			return err == nil && int64(len(docs)) == n
		},
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.OneConstOf("scheduled", "canceled", "completed"),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

func TestProperty_PagesConcatenateToFullListing(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("walking every page yields the sorted listing once", prop.ForAll(
		func(sizes []int, pageSize int, desc bool) bool {
			repo, err := propertyEvents(sizes)
			if err != nil {
				return false
			}
			ctx := context.Background()
			order, err := testEventShape.Sort([]string{"max_attendees"}, !desc)
			if err != nil {
				return false
			}
			full, err := repo.GetMany(ctx, FindOptions{Sort: order})
			if err != nil {
				return false
			}

			var walked []*testEvent
			req := NewPageRequest[testEventFilters]()
			req.PageSize = pageSize
			req.SortBy = "max_attendees"
			if desc {
				req.SortOrder = "desc"
			}
			for page := 1; ; page++ {
				req.Page = page
				resp, err := Paginate(ctx, repo, req, nil, false)
				if err != nil {
					return false
				}
				if resp.TotalCount != int64(len(sizes)) || resp.Pages != PageCount(int64(len(sizes)), pageSize) {
					return false
				}
				if len(resp.Items) == 0 {
					break
				}
				walked = append(walked, resp.Items...)
			}
			if !reflect.DeepEqual(titles(walked), titles(full)) {
				return false
			}

			// Equal keys must still order the same way on every read.
			values := make([]int, len(full))
			for i, e := range full {
				values[i] = e.MaxAttendees
			}
			return sort.SliceIsSorted(values, func(i, j int) bool {
				if desc {
					return values[i] > values[j]
				}
				return values[i] < values[j]
			})
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.IntRange(1, MaxPageSize),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_AllOfGroupingInvariance(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("AllOf(AllOf(a,b),c) selects what AllOf(a,AllOf(b,c)) selects", prop.ForAll(
		func(sizes []int, a, b, c int) bool {
			repo, err := propertyEvents(sizes)
			if err != nil {
				return false
			}
			ctx := context.Background()
			x, y, z := Gte("max_attendees", a), Lte("max_attendees", b), Ne("max_attendees", c)
			left, err := repo.Count(ctx, AllOf(AllOf(x, y), z))
			if err != nil {
				return false
			}
			right, err := repo.Count(ctx, AllOf(x, AllOf(y, z)))
			return err == nil && left == right && reflect.DeepEqual(AllOf(AllOf(x, y), z), AllOf(x, AllOf(y, z)))
		},
		gen.SliceOf(gen.IntRange(0, 30)),
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
