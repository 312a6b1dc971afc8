package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/pkg/storage"
)

// DescribeStorageDriver registers the behavior every storage.Driver must
// share. newDriver is called before each test and must return an empty store.
func DescribeStorageDriver(newDriver func(ctx context.Context) storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver(ctx)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("round trips a function", func() {
			req := CalculateSumRequest()
			f := req.NewFunction("fn-1", FixedTime)
			Expect(driver.Put(ctx, f)).To(Succeed())

			got, err := driver.Get(ctx, "fn-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("fn-1"))
			Expect(got.Name).To(Equal("calculate_sum"))
			Expect(got.Description).To(Equal(f.Description))
			Expect(got.Tags).To(Equal(f.Tags))
			Expect(got.UseCases).To(Equal(f.UseCases))
			Expect(got.Parameters).To(HaveKey("a"))
			Expect(got.LastUpdated.Equal(FixedTime)).To(BeTrue())
		})

		It("replaces an existing function with the same id", func() {
			f := NewTestFunction("first", "first description", "text")
			Expect(driver.Put(ctx, f)).To(Succeed())

			f.Name = "renamed"
			f.LastUpdated = FixedTime.Add(time.Hour)
			Expect(driver.Put(ctx, f)).To(Succeed())

			got, err := driver.Get(ctx, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("renamed"))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("does not share memory with the caller", func() {
			f := NewTestFunction("isolated", "isolation check", "text", "a")
			Expect(driver.Put(ctx, f)).To(Succeed())
			f.Tags[0] = "mutated"

			got, err := driver.Get(ctx, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tags).To(Equal([]string{"a"}))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("rejects a function without an id", func() {
			f := NewTestFunction("no_id", "no id", "text")
			f.ID = ""
			Expect(driver.Put(ctx, f)).NotTo(Succeed())
		})
	})

	Describe("Delete", func() {
		It("removes a function", func() {
			f := NewTestFunction("doomed", "to be deleted", "text")
			Expect(driver.Put(ctx, f)).To(Succeed())
			Expect(driver.Delete(ctx, f.ID)).To(Succeed())

			_, err := driver.Get(ctx, f.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns NotFoundError for an unknown id", func() {
			err := driver.Delete(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("List and Count", func() {
		It("lists functions ordered by name", func() {
			for _, name := range []string{"zeta", "alpha", "mid"} {
				Expect(driver.Put(ctx, NewTestFunction(name, name+" function", "text"))).To(Succeed())
			}

			fns, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fns).To(HaveLen(3))
			Expect(fns[0].Name).To(Equal("alpha"))
			Expect(fns[1].Name).To(Equal("mid"))
			Expect(fns[2].Name).To(Equal("zeta"))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("lists nothing when empty", func() {
			fns, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(fns).To(BeEmpty())
		})
	})

	Describe("Clear", func() {
		It("removes every function", func() {
			Expect(driver.Put(ctx, NewTestFunction("one", "first", "text"))).To(Succeed())
			Expect(driver.Put(ctx, NewTestFunction("two", "second", "text"))).To(Succeed())
			Expect(driver.Clear(ctx)).To(Succeed())

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})
}
