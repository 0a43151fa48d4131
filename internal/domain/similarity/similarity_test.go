package similarity_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/okian/reelrank/internal/domain/similarity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCosine(t *testing.T) {
	Convey("Given embedding vectors", t, func() {
		Convey("When comparing a vector with itself", func() {
			rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test data
			for i := 0; i < 50; i++ {
				v := make([]float64, 384)
				for j := range v {
					v[j] = rng.NormFloat64()
				}
				s, err := similarity.Cosine(v, v)
				So(err, ShouldBeNil)
				So(s, ShouldEqual, 1.0)
			}
		})

		Convey("When comparing in both directions", func() {
			rng := rand.New(rand.NewSource(11)) //nolint:gosec // deterministic test data
			for i := 0; i < 50; i++ {
				a := make([]float64, 16)
				b := make([]float64, 16)
				for j := range a {
					a[j] = rng.Float64()*2 - 1
					b[j] = rng.Float64()*2 - 1
				}
				ab, err := similarity.Cosine(a, b)
				So(err, ShouldBeNil)
				ba, err := similarity.Cosine(b, a)
				So(err, ShouldBeNil)
				So(ab, ShouldEqual, ba)
				So(ab, ShouldBeBetweenOrEqual, -1, 1)
			}
		})

		Convey("When vectors are orthogonal or opposite", func() {
			s, err := similarity.Cosine([]float64{1, 0}, []float64{0, 1})
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 0)

			s, err = similarity.Cosine([]float64{1, 2, 3}, []float64{-1, -2, -3})
			So(err, ShouldBeNil)
			So(math.Abs(s+1), ShouldBeLessThan, 1e-12)
		})

		Convey("When vectors are parallel with different magnitudes", func() {
			s, err := similarity.Cosine([]float64{1, 2, 3}, []float64{2, 4, 6})
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("When dimensions mismatch or are empty", func() {
			_, err := similarity.Cosine([]float64{1, 2}, []float64{1})
			So(err, ShouldEqual, similarity.ErrDimensionMismatch)
			_, err = similarity.Cosine(nil, nil)
			So(err, ShouldEqual, similarity.ErrDimensionMismatch)
		})

		Convey("When one vector is all zeros", func() {
			_, err := similarity.Cosine([]float64{0, 0}, []float64{1, 1})
			So(err, ShouldEqual, similarity.ErrZeroVector)
		})
	})
}
