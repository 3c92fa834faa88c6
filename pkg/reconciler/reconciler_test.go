// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akam1o/cbs-volume/pkg/cbs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const volumeUUID = "5aa119a8-d25b-45a7-8d1b-88e127885635"

func validSpec() VolumeSpec {
	return VolumeSpec{
		Name:               "my-volume",
		Size:               150,
		VolumeType:         cbs.VolumeTypeSSD,
		Description:        "scratch space",
		Metadata:           map[string]string{"env": "test"},
		SnapshotID:         "snap-1",
		State:              StatePresent,
		WaitTimeoutSeconds: DefaultWaitTimeoutSeconds,
	}
}

var _ = Describe("Volume reconciler", func() {
	var (
		ctx     context.Context
		service *fakeService
		r       *Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		service = newFakeService()
		r = NewReconciler(service, time.Millisecond)
	})

	Describe("validation", func() {
		DescribeTable("rejects bad specs before any remote call",
			func(mutate func(*VolumeSpec)) {
				spec := validSpec()
				mutate(&spec)

				result := r.Reconcile(ctx, spec)
				Expect(result.Failed()).To(BeTrue())
				Expect(IsValidation(result.Err)).To(BeTrue())
				Expect(result.Msg).ToNot(BeEmpty())
				Expect(result.Changed).To(BeFalse())
				Expect(service.remoteCalls()).To(Equal(0))
			},
			Entry("size below the minimum", func(s *VolumeSpec) { s.Size = 99 }),
			Entry("size of one", func(s *VolumeSpec) { s.Size = 1 }),
			Entry("negative size", func(s *VolumeSpec) { s.Size = -100 }),
			Entry("missing size", func(s *VolumeSpec) { s.Size = 0 }),
			Entry("missing name", func(s *VolumeSpec) { s.Name = "" }),
			Entry("missing volume type", func(s *VolumeSpec) { s.VolumeType = "" }),
			Entry("unknown volume type", func(s *VolumeSpec) { s.VolumeType = "NVME" }),
			Entry("missing state", func(s *VolumeSpec) { s.State = "" }),
			Entry("unknown state", func(s *VolumeSpec) { s.State = "running" }),
			Entry("negative wait timeout", func(s *VolumeSpec) { s.WaitTimeoutSeconds = -1 }),
		)

		It("accepts the minimum size", func() {
			spec := validSpec()
			spec.Size = MinVolumeSizeGB
			Expect(spec.Validate()).To(Succeed())
		})
	})

	Describe("absent", func() {
		It("does nothing when no volume matches", func() {
			spec := validSpec()
			spec.State = StateAbsent

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Changed).To(BeFalse())
			Expect(result.VolumeAttributes()).To(BeEmpty())
			Expect(service.deleteCalls).To(BeEmpty())
		})

		It("deletes the matching volume exactly once", func() {
			service = newFakeService(&cbs.Volume{ID: "vol-9", Name: "my-volume", Status: cbs.StatusAvailable})
			r = NewReconciler(service, time.Millisecond)
			spec := validSpec()
			spec.State = StateAbsent

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Changed).To(BeTrue())
			Expect(service.deleteCalls).To(Equal([]string{"vol-9"}))
			Expect(result.VolumeAttributes()).To(HaveKeyWithValue("id", "vol-9"))
		})

		It("surfaces delete failures with the service message", func() {
			service = newFakeService(&cbs.Volume{ID: "vol-9", Name: "my-volume", Status: cbs.StatusInUse})
			service.deleteErr = errors.New("Volume still has 1 dependent snapshots")
			r = NewReconciler(service, time.Millisecond)
			spec := validSpec()
			spec.State = StateAbsent

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeTrue())
			Expect(errors.Is(result.Err, ErrRemote)).To(BeTrue())
			Expect(result.Msg).To(Equal("Volume still has 1 dependent snapshots"))
			Expect(result.Changed).To(BeFalse())
		})
	})

	Describe("present", func() {
		It("creates a missing volume with every requested field", func() {
			spec := validSpec()

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Changed).To(BeTrue())
			Expect(service.createCalls).To(HaveLen(1))
			Expect(service.createCalls[0]).To(Equal(&cbs.CreateVolumeRequest{
				Name:        "my-volume",
				Size:        150,
				VolumeType:  cbs.VolumeTypeSSD,
				Description: "scratch space",
				Metadata:    map[string]string{"env": "test"},
				SnapshotID:  "snap-1",
			}))
			Expect(result.VolumeAttributes()).To(HaveKeyWithValue("id", "vol-1"))
		})

		It("leaves an existing volume alone", func() {
			service = newFakeService(&cbs.Volume{ID: "vol-9", Name: "my-volume", Status: cbs.StatusAvailable})
			r = NewReconciler(service, time.Millisecond)

			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Changed).To(BeFalse())
			Expect(service.createCalls).To(BeEmpty())
			Expect(result.Volume.Status).To(Equal(cbs.StatusAvailable))
		})

		It("surfaces create failures with the service message", func() {
			service.createErr = errors.New("Requested volume exceeds quota")

			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeTrue())
			Expect(IsRemote(result.Err)).To(BeTrue())
			Expect(result.Msg).To(Equal("Requested volume exceeds quota"))
			Expect(result.Changed).To(BeFalse())
		})

		It("reports a build failure together with the volume state", func() {
			service.statuses = []string{cbs.StatusError}

			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeTrue())
			Expect(errors.Is(result.Err, ErrBuild)).To(BeTrue())
			Expect(result.Msg).To(Equal("vol-1 failed to build"))
			Expect(result.Changed).To(BeTrue())
			Expect(result.VolumeAttributes()).To(HaveKeyWithValue("status", cbs.StatusError))
		})

		It("fails when the refresh call fails", func() {
			service = newFakeService(&cbs.Volume{ID: "vol-9", Name: "my-volume", Status: cbs.StatusAvailable})
			service.getErr = errors.New("service unavailable")
			r = NewReconciler(service, time.Millisecond)

			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeTrue())
			Expect(errors.Is(result.Err, ErrRemote)).To(BeTrue())
			Expect(result.Volume.ID).To(Equal("vol-9"))
		})
	})

	Describe("waiting", func() {
		It("succeeds without a message once the volume is available", func() {
			service.statuses = []string{cbs.StatusCreating, cbs.StatusCreating, cbs.StatusAvailable}
			spec := validSpec()
			spec.Wait = true

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Msg).To(BeEmpty())
			Expect(result.Changed).To(BeTrue())
			Expect(result.Volume.ID).To(Equal("vol-1"))
			Expect(result.Volume.Status).To(Equal(cbs.StatusAvailable))
			// three polls and the final refresh
			Expect(service.getCalls).To(Equal(4))
		})

		It("polls at most wait timeout / 5 times", func() {
			service.statuses = []string{cbs.StatusCreating}
			spec := validSpec()
			spec.Wait = true
			spec.WaitTimeoutSeconds = 300

			result := r.Reconcile(ctx, spec)
			Expect(service.getCalls).To(Equal(60 + 1))
			Expect(result.Changed).To(BeTrue())
		})

		It("reports a timeout when the final status is unknown", func() {
			service.statuses = []string{"resizing"}
			spec := validSpec()
			spec.Wait = true
			spec.WaitTimeoutSeconds = 15

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeTrue())
			Expect(IsTimeout(result.Err)).To(BeTrue())
			Expect(result.Msg).To(Equal("Timeout waiting on vol-1"))
			Expect(result.Msg).To(ContainSubstring(result.Volume.ID))
			Expect(result.Changed).To(BeTrue())
			Expect(service.getCalls).To(Equal(3 + 1))
		})

		It("accepts a known but unsettled status once the budget is spent", func() {
			service.statuses = []string{cbs.StatusCreating}
			spec := validSpec()
			spec.Wait = true
			spec.WaitTimeoutSeconds = 10

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Volume.Status).To(Equal(cbs.StatusCreating))
		})

		It("makes no poll attempts when the timeout is below one interval", func() {
			spec := validSpec()
			spec.Wait = true
			spec.WaitTimeoutSeconds = 4

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(service.getCalls).To(Equal(1))
		})

		It("does not report a timeout for unknown statuses without wait", func() {
			service.statuses = []string{"resizing"}

			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Volume.Status).To(Equal("resizing"))
		})

		It("stops at the error status and reports a build failure", func() {
			service.statuses = []string{cbs.StatusCreating, cbs.StatusError}
			spec := validSpec()
			spec.Wait = true

			result := r.Reconcile(ctx, spec)
			Expect(errors.Is(result.Err, ErrBuild)).To(BeTrue())
			Expect(service.getCalls).To(Equal(2 + 1))
		})

		It("fails with partial state when a poll read fails", func() {
			service = newFakeService(&cbs.Volume{ID: "vol-9", Name: "my-volume", Status: cbs.StatusCreating})
			service.getErr = errors.New("connection reset by peer")
			r = NewReconciler(service, time.Millisecond)
			spec := validSpec()
			spec.Wait = true

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeTrue())
			Expect(errors.Is(result.Err, ErrRemote)).To(BeTrue())
			Expect(result.Msg).To(Equal("connection reset by peer"))
			Expect(result.Volume.ID).To(Equal("vol-9"))
		})

		It("reports a timeout when the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			spec := validSpec()
			spec.Wait = true

			result := r.Reconcile(cancelled, spec)
			Expect(IsTimeout(result.Err)).To(BeTrue())
			Expect(result.Msg).To(Equal("Timeout waiting on vol-1"))
			Expect(result.Changed).To(BeTrue())
		})

		It("handles the documented scenario", func() {
			service.statuses = []string{cbs.StatusCreating, cbs.StatusAvailable}
			spec := VolumeSpec{
				Name:               "my-volume",
				Size:               150,
				VolumeType:         cbs.VolumeTypeSSD,
				State:              StatePresent,
				Wait:               true,
				WaitTimeoutSeconds: 300,
			}

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(service.createCalls).To(HaveLen(1))
			Expect(service.getCalls).To(BeNumerically("<=", 61))
			Expect(result.VolumeAttributes()).To(HaveKeyWithValue("id", "vol-1"))
			Expect(result.VolumeAttributes()).To(HaveKeyWithValue("status", cbs.StatusAvailable))
		})
	})

	Describe("lookup", func() {
		It("resolves a UUID by id without a name search", func() {
			service = newFakeService(&cbs.Volume{ID: volumeUUID, Name: "data", Status: cbs.StatusAvailable})
			r = NewReconciler(service, time.Millisecond)
			spec := validSpec()
			spec.Name = volumeUUID

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Changed).To(BeFalse())
			Expect(service.findCalls).To(Equal(0))
			Expect(result.Volume.Name).To(Equal("data"))
		})

		It("creates a volume named after an unknown UUID", func() {
			spec := validSpec()
			spec.Name = volumeUUID

			result := r.Reconcile(ctx, spec)
			Expect(result.Failed()).To(BeFalse())
			Expect(result.Changed).To(BeTrue())
			Expect(service.findCalls).To(Equal(0))
			Expect(service.createCalls).To(HaveLen(1))
			Expect(service.createCalls[0].Name).To(Equal(volumeUUID))
		})

		It("always searches by name for non-UUID names", func() {
			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeFalse())
			Expect(service.findCalls).To(Equal(1))
			// only the refresh reads by id
			Expect(service.getCalls).To(Equal(1))
		})

		It("fails on lookup errors other than not found", func() {
			service.findErr = fmt.Errorf("%w: 2 volumes named %q", cbs.ErrAmbiguousVolume, "my-volume")

			result := r.Reconcile(ctx, validSpec())
			Expect(result.Failed()).To(BeTrue())
			Expect(errors.Is(result.Err, ErrLookup)).To(BeTrue())
			Expect(errors.Is(result.Err, cbs.ErrAmbiguousVolume)).To(BeTrue())
			Expect(service.createCalls).To(BeEmpty())
		})

		It("fails on id lookup errors other than not found", func() {
			service.getErr = cbs.ErrUnavailable
			spec := validSpec()
			spec.Name = volumeUUID

			result := r.Reconcile(ctx, spec)
			Expect(errors.Is(result.Err, ErrLookup)).To(BeTrue())
			Expect(result.Msg).To(Equal(cbs.ErrUnavailable.Error()))
		})
	})
})
