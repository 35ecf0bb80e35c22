package recurrence_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teamplan/scheduler/internal/recurrence"
)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

var _ = Describe("Expand", func() {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	Context("with a weekly rule and count", func() {
		It("emits count-1 additional occurrences one week apart", func() {
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyWeekly,
				Interval:  1,
				Count:     intPtr(3),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(HaveLen(2))
			Expect(occurrences[0]).To(Equal(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)))
			Expect(occurrences[1]).To(Equal(time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)))
		})
	})

	Context("with a daily rule and until", func() {
		It("includes occurrences up to and including the bound", func() {
			until := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyDaily,
				Interval:  1,
				Until:     timePtr(until),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(HaveLen(3))
			for _, occ := range occurrences {
				Expect(occ.After(until)).To(BeFalse())
			}
			Expect(occurrences[2]).To(Equal(until))
		})

		It("respects the interval", func() {
			until := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyDaily,
				Interval:  3,
				Until:     timePtr(until),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(Equal([]time.Time{
				time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
				time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
			}))
		})
	})

	Context("with a monthly rule rooted on Jan 31", func() {
		It("clamps to the end of February and returns to Mar 31", func() {
			root := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyMonthly,
				Interval:  1,
				Count:     intPtr(4),
			}

			occurrences, err := recurrence.Expand(root, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(HaveLen(3))
			Expect(occurrences[0]).To(Equal(time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)))
			Expect(occurrences[1]).To(Equal(time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)))
			Expect(occurrences[2]).To(Equal(time.Date(2026, 4, 30, 10, 0, 0, 0, time.UTC)))
		})

		It("lands on Feb 29 in a leap year", func() {
			root := time.Date(2028, 1, 31, 10, 0, 0, 0, time.UTC)
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyMonthly,
				Interval:  1,
				Count:     intPtr(2),
			}

			occurrences, err := recurrence.Expand(root, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(Equal([]time.Time{
				time.Date(2028, 2, 29, 10, 0, 0, 0, time.UTC),
			}))
		})
	})

	Context("with a yearly rule", func() {
		It("advances whole years preserving the wall clock", func() {
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyYearly,
				Interval:  1,
				Count:     intPtr(3),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(Equal([]time.Time{
				time.Date(2027, 3, 2, 9, 0, 0, 0, time.UTC),
				time.Date(2028, 3, 2, 9, 0, 0, 0, time.UTC),
			}))
		})
	})

	Context("safety cap", func() {
		It("never emits more than the cap even for a distant until", func() {
			until := base.AddDate(10, 0, 0)
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyDaily,
				Interval:  1,
				Until:     timePtr(until),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(HaveLen(recurrence.MaxOccurrences))
		})

		It("caps count rules the same way", func() {
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyDaily,
				Interval:  1,
				Count:     intPtr(100000),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(HaveLen(recurrence.MaxOccurrences))
		})
	})

	Context("validation", func() {
		It("rejects a rule with both until and count", func() {
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyDaily,
				Interval:  1,
				Until:     timePtr(base.AddDate(0, 1, 0)),
				Count:     intPtr(5),
			}

			_, err := recurrence.Expand(base, rule)
			Expect(err).To(MatchError(recurrence.ErrUnboundedRule))
		})

		It("rejects a rule with neither bound", func() {
			rule := recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: 1}

			_, err := recurrence.Expand(base, rule)
			Expect(err).To(MatchError(recurrence.ErrUnboundedRule))
		})

		It("rejects an unknown frequency", func() {
			rule := recurrence.Rule{Frequency: "hourly", Interval: 1, Count: intPtr(2)}

			_, err := recurrence.Expand(base, rule)
			Expect(err).To(MatchError(recurrence.ErrInvalidFrequency))
		})

		It("rejects a zero interval", func() {
			rule := recurrence.Rule{Frequency: recurrence.FrequencyDaily, Interval: 0, Count: intPtr(2)}

			_, err := recurrence.Expand(base, rule)
			Expect(err).To(MatchError(recurrence.ErrInvalidInterval))
		})
	})

	Context("normalizing a zone-aware until", func() {
		It("compares against the naive UTC convention", func() {
			moscow := time.FixedZone("MSK", 3*60*60)
			// 2026-03-05 12:00 MSK == 2026-03-05 09:00 UTC
			until := time.Date(2026, 3, 5, 12, 0, 0, 0, moscow)
			rule := recurrence.Rule{
				Frequency: recurrence.FrequencyDaily,
				Interval:  1,
				Until:     timePtr(until),
			}

			occurrences, err := recurrence.Expand(base, rule)

			Expect(err).ToNot(HaveOccurred())
			Expect(occurrences).To(HaveLen(3))
		})
	})
})
