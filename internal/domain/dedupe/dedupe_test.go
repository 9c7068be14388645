package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/smileboard/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When an id is new", func() {
			seen := d.SeenAndRecord(ctx, "req-1")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an id is offered twice", func() {
			d.SeenAndRecord(ctx, "req-1")
			seen := d.SeenAndRecord(ctx, "req-1")

			Convey("Then the second call reports it as seen", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an id is unrecorded", func() {
			d.SeenAndRecord(ctx, "req-1")
			d.Unrecord(ctx, "req-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "req-1"), ShouldBeFalse)
			})
		})

		Convey("When the empty id is offered", func() {
			Convey("Then it is never considered seen", func() {
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded deduper of size 3", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("req-%d", i))
		}

		Convey("Then the oldest id was evicted", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "req-4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "req-2"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "req-1"), ShouldBeFalse)
		})

		Convey("When an id in the middle is unrecorded and more arrive", func() {
			d.Unrecord(ctx, "req-3")
			d.SeenAndRecord(ctx, "req-5")
			d.SeenAndRecord(ctx, "req-6")

			Convey("Then size stays within bounds", func() {
				So(d.Size(), ShouldBeLessThanOrEqualTo, 3)
				So(d.SeenAndRecord(ctx, "req-6"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 5000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("req-%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 5000)
			So(d.SeenAndRecord(ctx, "req-0"), ShouldBeTrue)
		})
	})

	Convey("Given concurrent callers racing on the same ids", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		var wg sync.WaitGroup
		var mu sync.Mutex
		firsts := 0
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("req-%d", i)) {
						mu.Lock()
						firsts++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id is recorded exactly once", func() {
			So(firsts, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
