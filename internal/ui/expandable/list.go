// Package expandable provides a generic list of collapsible items bound to a data model.
//
// A List owns its data model, a loading flag and an empty-state message. Rows are
// produced by an injected ItemFactory, so list types compose the framework instead of
// extending it.
package expandable

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Markers shown in front of collapsed and expanded items
const (
	CollapsedMarker = "▸"
	ExpandedMarker  = "▾"
)

// DefaultLoadingMessage is shown while a list is loading.
const DefaultLoadingMessage = "Loading..."

// Item renders one row of a List.
type Item interface {
	// Brief returns the one-line summary shown for collapsed and expanded rows.
	Brief() string
	// RenderExpanded writes the detail panel, each line prefixed with indent.
	RenderExpanded(w io.Writer, indent string) error
}

// ItemFactory creates the Item displaying one element of the data model.
type ItemFactory[T any] func(data T) Item

// ArrayDataModel is an ordered, immutable sequence of list data.
type ArrayDataModel[T any] struct {
	items []T
}

// NewArrayDataModel copies items into a new model.
func NewArrayDataModel[T any](items []T) *ArrayDataModel[T] {
	cp := make([]T, len(items))
	copy(cp, items)
	return &ArrayDataModel[T]{items: cp}
}

// Len returns the number of elements.
func (m *ArrayDataModel[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.items)
}

// Item returns the element at index i.
func (m *ArrayDataModel[T]) Item(i int) T {
	return m.items[i]
}

// Slice returns a copy of the elements.
func (m *ArrayDataModel[T]) Slice() []T {
	if m == nil {
		return nil
	}
	cp := make([]T, len(m.items))
	copy(cp, m.items)
	return cp
}

// RenderOptions controls List.Render.
type RenderOptions struct {
	// Indent is the per-level indentation of expanded content.
	Indent string
}

// List is a collapsible list of items created from a data model. Safe for concurrent use.
type List[T any] struct {
	mu             sync.RWMutex
	factory        ItemFactory[T]
	data           *ArrayDataModel[T]
	items          []Item
	expanded       bool
	loading        bool
	emptyMessage   string
	loadingMessage string
}

// NewList creates a List whose rows are built by factory. A new list is loading until
// its first SetLoading(false).
func NewList[T any](factory ItemFactory[T]) *List[T] {
	if factory == nil {
		panic("expandable.NewList: nil item factory")
	}
	return &List[T]{
		factory:        factory,
		data:           NewArrayDataModel[T](nil),
		loading:        true,
		loadingMessage: DefaultLoadingMessage,
	}
}

// SetData replaces the data model and rebuilds every item.
func (l *List[T]) SetData(model *ArrayDataModel[T]) {
	if model == nil {
		model = NewArrayDataModel[T](nil)
	}
	items := make([]Item, model.Len())
	for i := range items {
		items[i] = l.factory(model.Item(i))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = model
	l.items = items
}

// Data returns the current data model.
func (l *List[T]) Data() *ArrayDataModel[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data
}

// Items returns the rendered items in data order.
func (l *List[T]) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]Item, len(l.items))
	copy(cp, l.items)
	return cp
}

// Len returns the number of items.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// SetLoading sets the loading state.
func (l *List[T]) SetLoading(loading bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = loading
}

// IsLoading reports whether the list is waiting for data.
func (l *List[T]) IsLoading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

// SetEmptyMessage sets the text shown when a loaded list has no items.
func (l *List[T]) SetEmptyMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emptyMessage = message
}

// EmptyMessage returns the configured empty-state text.
func (l *List[T]) EmptyMessage() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emptyMessage
}

// SetLoadingMessage sets the text shown while loading.
func (l *List[T]) SetLoadingMessage(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadingMessage = message
}

// IsEmpty reports whether loading completed with no items.
func (l *List[T]) IsEmpty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.loading && len(l.items) == 0
}

// ExpandAll expands or collapses every item.
func (l *List[T]) ExpandAll(expanded bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expanded = expanded
}

// Render writes the list as text: the loading message, the empty message, or one
// brief line per item, each followed by its detail panel when the list is expanded.
func (l *List[T]) Render(w io.Writer, opts RenderOptions) error {
	l.mu.RLock()
	loading := l.loading
	items := make([]Item, len(l.items))
	copy(items, l.items)
	expanded := l.expanded
	emptyMessage := l.emptyMessage
	loadingMessage := l.loadingMessage
	l.mu.RUnlock()

	indent := opts.Indent
	if indent == "" {
		indent = "  "
	}

	if loading {
		_, err := fmt.Fprintln(w, color.New(color.Faint).Sprint(loadingMessage))
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, emptyMessage)
		return err
	}

	header := color.New(color.Bold)
	for i, item := range items {
		marker := CollapsedMarker
		if expanded {
			marker = ExpandedMarker
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", marker, header.Sprint(item.Brief())); err != nil {
			return err
		}
		if !expanded {
			continue
		}
		if err := item.RenderExpanded(w, indent); err != nil {
			return fmt.Errorf("render item %d: %w", i, err)
		}
	}
	return nil
}
