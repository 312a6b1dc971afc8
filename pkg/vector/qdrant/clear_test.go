package qdrant_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/vector"
	"github.com/papercomputeco/fnindex/pkg/vector/qdrant"
)

var errCreate = errors.New("create failed")

// fakeClient keeps collection existence only; point calls succeed empty.
type fakeClient struct {
	collections map[string]bool
	failCreate  bool
	deletes     []*qc.DeletePoints
}

func (f *fakeClient) CollectionExists(_ context.Context, name string) (bool, error) {
	return f.collections[name], nil
}

func (f *fakeClient) GetCollectionInfo(context.Context, string) (*qc.CollectionInfo, error) {
	return &qc.CollectionInfo{}, nil
}

func (f *fakeClient) CreateCollection(_ context.Context, req *qc.CreateCollection) error {
	if f.failCreate {
		return errCreate
	}
	f.collections[req.GetCollectionName()] = true
	return nil
}

func (f *fakeClient) CreateFieldIndex(context.Context, *qc.CreateFieldIndexCollection) (*qc.UpdateResult, error) {
	return &qc.UpdateResult{}, nil
}

func (f *fakeClient) DeleteCollection(_ context.Context, name string) error {
	delete(f.collections, name)
	return nil
}

func (f *fakeClient) Upsert(context.Context, *qc.UpsertPoints) (*qc.UpdateResult, error) {
	return &qc.UpdateResult{}, nil
}

func (f *fakeClient) Query(context.Context, *qc.QueryPoints) ([]*qc.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeClient) Get(context.Context, *qc.GetPoints) ([]*qc.RetrievedPoint, error) {
	return nil, nil
}

func (f *fakeClient) Delete(_ context.Context, req *qc.DeletePoints) (*qc.UpdateResult, error) {
	f.deletes = append(f.deletes, req)
	return &qc.UpdateResult{}, nil
}

func (f *fakeClient) Count(context.Context, *qc.CountPoints) (uint64, error) {
	return 0, nil
}

func (f *fakeClient) Close() error { return nil }

var _ = Describe("Driver with a fake client", func() {
	var (
		ctx    context.Context
		fake   *fakeClient
		driver *qdrant.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeClient{collections: map[string]bool{}}
		driver = qdrant.NewDriverWithClient(fake, nil)
		Expect(driver.EnsureCollection(ctx, vector.CollectionConfig{
			Name:       "functions",
			VectorSize: 4,
			Distance:   vector.DistanceCosine,
		})).To(Succeed())
	})

	It("recreates the collection on clear", func() {
		Expect(driver.Clear(ctx)).To(Succeed())
		Expect(fake.collections).To(HaveKey("functions"))
		Expect(driver.Upsert(ctx, nil)).To(Succeed())
	})

	It("reports a missing collection after a clear that could not recreate it", func() {
		fake.failCreate = true

		err := driver.Clear(ctx)
		Expect(err).To(MatchError(errCreate))
		Expect(fake.collections).NotTo(HaveKey("functions"))

		_, err = driver.Query(ctx, []float32{1, 0, 0, 0}, nil, 5)
		Expect(err).To(MatchError(vector.ErrNoCollection))
		Expect(driver.DeleteByFunction(ctx, "f1")).To(MatchError(vector.ErrNoCollection))

		fake.failCreate = false
		Expect(driver.EnsureCollection(ctx, vector.CollectionConfig{
			Name:       "functions",
			VectorSize: 4,
			Distance:   vector.DistanceCosine,
		})).To(Succeed())
		_, err = driver.Query(ctx, []float32{1, 0, 0, 0}, nil, 5)
		Expect(err).NotTo(HaveOccurred())
	})

	It("deletes points by id", func() {
		Expect(driver.Delete(ctx, nil)).To(Succeed())
		Expect(fake.deletes).To(BeEmpty())

		ids := []string{vector.PointID("f1", function.ViewMain), vector.PointID("f1", function.ViewCombined)}
		Expect(driver.Delete(ctx, ids)).To(Succeed())
		Expect(fake.deletes).To(HaveLen(1))
		Expect(fake.deletes[0].GetPoints().GetPoints().GetIds()).To(HaveLen(2))
	})
})
