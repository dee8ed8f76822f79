package eeg

import (
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func pushRamp(b *Buffer, from, to int) {
	for i := from; i < to; i++ {
		v := float64(i)
		if _, err := b.Push([]float64{v, -v}); err != nil {
			panic(err)
		}
	}
}

func TestBuffer(t *testing.T) {
	Convey("Given a two-channel buffer of capacity 4", t, func() {
		b, err := NewBuffer(2, 4)
		So(err, ShouldBeNil)

		Convey("An empty buffer yields an all-zero padded epoch of the requested shape", func() {
			ep := b.LastN(3)
			So(ep.Channels(), ShouldEqual, 2)
			So(ep.Len(), ShouldEqual, 3)
			So(ep.Data, ShouldResemble, [][]float64{{0, 0, 0}, {0, 0, 0}})
			So(ep.Padded, ShouldBeTrue)
			So(ep.Tag(), ShouldEqual, TagZeroPadded)
		})

		Convey("Short history is zero-filled at the front", func() {
			pushRamp(b, 1, 3)
			ep := b.LastN(4)
			So(ep.Data[0], ShouldResemble, []float64{0, 0, 1, 2})
			So(ep.Data[1], ShouldResemble, []float64{0, 0, -1, -2})
			So(ep.Padded, ShouldBeTrue)
			So(ep.FirstSeq, ShouldEqual, 0)
		})

		Convey("A full request returns the newest samples oldest first", func() {
			pushRamp(b, 0, 3)
			ep := b.LastN(2)
			So(ep.Data[0], ShouldResemble, []float64{1, 2})
			So(ep.Padded, ShouldBeFalse)
			So(ep.Tag(), ShouldEqual, TagComplete)
			So(ep.FirstSeq, ShouldEqual, 1)
		})

		Convey("Wrapping overwrites the oldest samples", func() {
			pushRamp(b, 0, 10)
			So(b.Len(), ShouldEqual, 4)
			So(b.Total(), ShouldEqual, 10)
			ep := b.LastN(4)
			So(ep.Data[0], ShouldResemble, []float64{6, 7, 8, 9})
			So(ep.FirstSeq, ShouldEqual, 6)
		})

		Convey("Requests beyond capacity are padded", func() {
			pushRamp(b, 0, 10)
			ep := b.LastN(6)
			So(ep.Data[0], ShouldResemble, []float64{0, 0, 6, 7, 8, 9})
			So(ep.Padded, ShouldBeTrue)
		})

		Convey("A zero-length request is empty and complete", func() {
			ep := b.LastN(0)
			So(ep.Len(), ShouldEqual, 0)
			So(ep.Padded, ShouldBeFalse)
		})

		Convey("Sequence numbers increase by one per push", func() {
			s0, _ := b.Push([]float64{1, 1})
			s1, _ := b.Push([]float64{2, 2})
			So(s1.Seq, ShouldEqual, s0.Seq+1)
		})

		Convey("The epoch does not alias the ring", func() {
			pushRamp(b, 0, 4)
			ep := b.LastN(4)
			ep.Data[0][0] = 99
			So(b.LastN(4).Data[0][0], ShouldEqual, 0)
		})

		Convey("Pushing the wrong channel count fails", func() {
			_, err := b.Push([]float64{1, 2, 3})
			So(errors.Is(err, ErrChannelMismatch), ShouldBeTrue)
			So(b.Len(), ShouldEqual, 0)
		})

		Convey("Concurrent producer and reader never observe torn samples", func() {
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				pushRamp(b, 0, 2000)
			}()
			for i := 0; i < 200; i++ {
				ep := b.LastN(4)
				for j := 0; j < ep.Len(); j++ {
					So(ep.Data[1][j], ShouldEqual, -ep.Data[0][j])
				}
			}
			wg.Wait()
		})
	})

	Convey("Invalid dimensions are rejected", t, func() {
		_, err := NewBuffer(0, 10)
		So(errors.Is(err, ErrInvalidBuffer), ShouldBeTrue)
		_, err = NewBuffer(8, 0)
		So(errors.Is(err, ErrInvalidBuffer), ShouldBeTrue)
	})
}

func TestEpoch(t *testing.T) {
	Convey("Given an epoch", t, func() {
		ep := Epoch{Data: [][]float64{{1, 2}, {3, 4}}}

		Convey("Channel returns the series", func() {
			x, err := ep.Channel(1)
			So(err, ShouldBeNil)
			So(x, ShouldResemble, []float64{3, 4})
		})

		Convey("Out of range channels are errors", func() {
			_, err := ep.Channel(2)
			So(errors.Is(err, ErrChannelOutOfRange), ShouldBeTrue)
			_, err = ep.Channel(-1)
			So(err, ShouldNotBeNil)
		})

		Convey("An epoch without channels has length zero", func() {
			So(Epoch{}.Len(), ShouldEqual, 0)
		})
	})

	Convey("SamplesFor truncates", t, func() {
		So(SamplesFor(800*time.Millisecond, 250), ShouldEqual, 200)
		So(SamplesFor(250*time.Millisecond, 250), ShouldEqual, 62)
		So(SamplesFor(500*time.Millisecond, 250), ShouldEqual, 125)
		So(SamplesFor(3*time.Second, 250), ShouldEqual, 750)
		So(SamplesFor(0, 250), ShouldEqual, 0)
	})
}

func TestExtract(t *testing.T) {
	Convey("Extract delegates to the snapshotter", t, func() {
		b, _ := NewBuffer(1, 8)
		_, _ = b.Push([]float64{5})
		ep := Extract(b, 2)
		So(ep.Data, ShouldResemble, [][]float64{{0, 5}})
		So(ep.Padded, ShouldBeTrue)
	})
}
