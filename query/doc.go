// Package query answers similarity queries against a feed store.
//
// The Matcher computes the distance of a query digest to every feed entry
// and returns matches within a threshold, ascending by distance with ties
// broken by feed insertion order. A linear scan is exact and fast enough
// for corpora up to low tens of thousands of entries; for larger feeds an
// optional banding prefilter groups entries by their digest length bucket
// in roaring bitmaps and skips whole bands whose length-bucket distance
// alone already exceeds the threshold. Banding is purely a performance
// device: the banded and naive scans return identical result sets.
package query
