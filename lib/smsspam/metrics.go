package smsspam

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// ClassMetrics is precision, recall and f1 score of a class, or their average
type ClassMetrics struct {
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
	Support   int     `json:"support" yaml:"support"`
}

// Report is the evaluation of predicted labels against the true ones
type Report struct {
	Total       int                     `json:"total" yaml:"total"`
	Accuracy    float64                 `json:"accuracy" yaml:"accuracy"`
	Classes     []Label                 `json:"classes" yaml:"classes"`
	PerClass    map[Label]ClassMetrics  `json:"per_class" yaml:"per_class"`
	MacroAvg    ClassMetrics            `json:"macro_avg" yaml:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg" yaml:"weighted_avg"`
	Confusion   map[Label]map[Label]int `json:"confusion" yaml:"confusion"` // actual -> predicted -> count
}

// Evaluate compares actual and predicted labels. Classes are the union of both sets,
// metrics with zero denominator reported as 0.
func Evaluate(actual, predicted []Label) (Report, error) {
	if len(actual) != len(predicted) {
		return Report{}, fmt.Errorf("can't evaluate %d actual labels against %d predicted", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return Report{}, errors.New("can't evaluate empty set")
	}

	classes := lo.Uniq(append(append([]Label{}, actual...), predicted...))
	sortLabels(classes)

	confusion := make(map[Label]map[Label]int, len(classes))
	for _, c := range classes {
		confusion[c] = make(map[Label]int, len(classes))
	}
	correct := 0
	for i := range actual {
		confusion[actual[i]][predicted[i]]++
		if actual[i] == predicted[i] {
			correct++
		}
	}

	res := Report{
		Total:     len(actual),
		Accuracy:  float64(correct) / float64(len(actual)),
		Classes:   classes,
		PerClass:  make(map[Label]ClassMetrics, len(classes)),
		Confusion: confusion,
	}
	for _, c := range classes {
		tp := confusion[c][c]
		support := lo.Sum(lo.Values(confusion[c]))
		predictedAs := lo.SumBy(classes, func(a Label) int { return confusion[a][c] })
		m := ClassMetrics{Support: support, Precision: ratio(tp, predictedAs), Recall: ratio(tp, support)}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		res.PerClass[c] = m

		res.MacroAvg.Precision += m.Precision / float64(len(classes))
		res.MacroAvg.Recall += m.Recall / float64(len(classes))
		res.MacroAvg.F1 += m.F1 / float64(len(classes))
		w := float64(support) / float64(len(actual))
		res.WeightedAvg.Precision += m.Precision * w
		res.WeightedAvg.Recall += m.Recall * w
		res.WeightedAvg.F1 += m.F1 * w
	}
	res.MacroAvg.Support = len(actual)
	res.WeightedAvg.Support = len(actual)
	return res, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
