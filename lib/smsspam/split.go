package smsspam

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samber/lo"
)

// default split parameters
const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

// Sample is a labeled sms text from the dataset
type Sample struct {
	Text  string
	Label Label
}

// SplitConfig defines train/test split parameters
type SplitConfig struct {
	TestSize float64 // fraction of samples in the test part, (0, 1)
	Seed     uint64  // the same seed and input always give the same split
	Stratify bool    // keep class ratios in both parts
}

// Split partitions samples into train and test parts with a seeded random permutation
func Split(samples []Sample, cfg SplitConfig) (train, test []Sample, err error) {
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return nil, nil, fmt.Errorf("test size %v is out of (0, 1) range", cfg.TestSize)
	}
	n := len(samples)
	nTest := int(math.Ceil(float64(n) * cfg.TestSize))
	if n < 2 || nTest >= n {
		return nil, nil, fmt.Errorf("can't split %d samples with test size %v", n, cfg.TestSize)
	}

	rnd := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)) //nolint:gosec // reproducible split, not security related
	if !cfg.Stratify {
		perm := rnd.Perm(n)
		test = make([]Sample, 0, nTest)
		train = make([]Sample, 0, n-nTest)
		for i, idx := range perm {
			if i < nTest {
				test = append(test, samples[idx])
				continue
			}
			train = append(train, samples[idx])
		}
		return train, test, nil
	}

	groups := lo.GroupBy(samples, func(s Sample) Label { return s.Label })
	for _, l := range Labels() {
		group := groups[l]
		if len(group) == 0 {
			continue
		}
		groupTest := int(math.Round(float64(len(group)) * cfg.TestSize))
		groupTest = min(max(groupTest, 1), len(group)-1) // single-sample class goes to train
		for i, idx := range rnd.Perm(len(group)) {
			if i < groupTest {
				test = append(test, group[idx])
				continue
			}
			train = append(train, group[idx])
		}
	}
	if len(test) == 0 {
		return nil, nil, fmt.Errorf("can't make stratified split of %d samples with test size %v", n, cfg.TestSize)
	}
	rnd.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rnd.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}
