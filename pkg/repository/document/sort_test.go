package document

import (
	"errors"
	"reflect"
	"testing"
)

func TestShapeSort(t *testing.T) {
	tests := []struct {
		name      string
		fields    []string
		ascending []bool
		want      []SortKey
		wantErr   bool
	}{
		{"defaults to ascending", []string{"title", "status"}, nil,
			[]SortKey{{"title", true}, {"status", true}}, false},
		{"single flag applies to all", []string{"title", "status"}, []bool{false},
			[]SortKey{{"title", false}, {"status", false}}, false},
		{"one flag per key", []string{"title", "status"}, []bool{true, false},
			[]SortKey{{"title", true}, {"status", false}}, false},
		{"mismatched flag count", []string{"title", "status", "tags"}, []bool{true, false}, nil, true},
		{"unknown key", []string{"nope"}, nil, nil, true},
		{"empty", nil, nil, []SortKey{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testEventShape.Sort(tt.fields, tt.ascending...)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSort) {
					t.Fatalf("expected ErrInvalidSort, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sort() error = %v", err)
			}
			keys := got.Keys()
			if keys == nil {
				keys = []SortKey{}
			}
			if !reflect.DeepEqual(keys, tt.want) {
				t.Fatalf("Sort() = %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestSortFromOrder(t *testing.T) {
	s, err := testEventShape.SortFromOrder([]OrderItem{{Column: "start_time"}, {Column: "title", Ascending: ptr(false)}})
	if err != nil {
		t.Fatalf("SortFromOrder() error = %v", err)
	}
	if s.String() != "start_time:asc,title:desc" {
		t.Fatalf("SortFromOrder() = %s", s)
	}
}

func TestSort_TieBreaker(t *testing.T) {
	s, _ := testEventShape.Sort([]string{"status"})
	if got := s.withTieBreaker(); !reflect.DeepEqual(got, []SortKey{{"status", true}, {IDField, true}}) {
		t.Fatalf("withTieBreaker() = %v", got)
	}
	if got := (Sort{}).withTieBreaker(); got != nil {
		t.Fatalf("zero sort must keep natural order, got %v", got)
	}
	s, _ = testEventShape.Sort([]string{IDField}, false)
	if got := s.withTieBreaker(); len(got) != 1 {
		t.Fatalf("explicit _id key must not be duplicated, got %v", got)
	}
}

func TestParseOrder(t *testing.T) {
	items, err := ParseOrder("start_time:desc, title ,status:ASC")
	if err != nil {
		t.Fatalf("ParseOrder() error = %v", err)
	}
	s, err := testEventShape.SortFromOrder(items)
	if err != nil {
		t.Fatalf("SortFromOrder() error = %v", err)
	}
	if s.String() != "start_time:desc,title:asc,status:asc" {
		t.Fatalf("ParseOrder() = %s", s)
	}
	if _, err := ParseOrder("title:sideways"); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
}

func TestNewShape(t *testing.T) {
	if !testEventShape.HasField(IDField) || !testEventShape.HasField("created_by") {
		t.Fatal("expected inline _id and created_by fields")
	}
	if f, ok := testEventShape.SoftDeleteField(); !ok || f != "deleted_at" {
		t.Fatalf("SoftDeleteField() = %q, %v", f, ok)
	}
	if _, ok := testNoteShape.SoftDeleteField(); ok {
		t.Fatal("notes declare no soft delete field")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown soft delete field")
		}
	}()
	NewShape[testUser]("bad", WithSoftDelete("deleted_at"))
}
