package classifier

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
)

// Accuracy returns the fraction of positions where pred equals truth.
func Accuracy(truth, pred []string) float64 {
	if len(truth) == 0 {
		return 0
	}
	var ok int
	for i := range truth {
		if truth[i] == pred[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(truth))
}

// ConfusionMatrix counts predictions per true class. Counts[i][j] is the
// number of samples of Labels[i] predicted as Labels[j].
type ConfusionMatrix struct {
	Labels []string `yaml:"labels"`
	Counts [][]int  `yaml:"counts"`
}

// NewConfusionMatrix tallies truth against pred over labels. Pairs whose
// labels are not in labels are skipped.
func NewConfusionMatrix(labels, truth, pred []string) ConfusionMatrix {
	cm := ConfusionMatrix{Labels: slices.Clone(labels), Counts: make([][]int, len(labels))}
	for i := range cm.Counts {
		cm.Counts[i] = make([]int, len(labels))
	}
	for i := range truth {
		t, p := slices.Index(labels, truth[i]), slices.Index(labels, pred[i])
		if t < 0 || p < 0 {
			continue
		}
		cm.Counts[t][p]++
	}
	return cm
}

// WriteTo renders the matrix as an aligned table.
func (cm ConfusionMatrix) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "true\\pred\t")
	for _, l := range cm.Labels {
		fmt.Fprintf(tw, "%s\t", l)
	}
	fmt.Fprintln(tw)
	for i, row := range cm.Counts {
		fmt.Fprintf(tw, "%s\t", cm.Labels[i])
		for _, c := range row {
			fmt.Fprintf(tw, "%d\t", c)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// ClassMetrics holds per-class precision, recall and F1.
type ClassMetrics struct {
	Label     string  `yaml:"label"`
	Precision float64 `yaml:"precision"`
	Recall    float64 `yaml:"recall"`
	F1        float64 `yaml:"f1"`
	Support   int     `yaml:"support"`
}

// Report is a per-class evaluation summary.
type Report struct {
	Classes  []ClassMetrics `yaml:"classes"`
	Accuracy float64        `yaml:"accuracy"`
	MacroF1  float64        `yaml:"macro_f1"`
}

// NewReport computes precision, recall and F1 for each label.
func NewReport(labels, truth, pred []string) Report {
	cm := NewConfusionMatrix(labels, truth, pred)
	r := Report{Accuracy: Accuracy(truth, pred)}
	for i, l := range labels {
		var tp, fp, fn int
		for j := range labels {
			switch {
			case i == j:
				tp = cm.Counts[i][j]
			default:
				fn += cm.Counts[i][j]
				fp += cm.Counts[j][i]
			}
		}
		m := ClassMetrics{Label: l, Support: tp + fn}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)
		r.MacroF1 += m.F1
	}
	if len(labels) > 0 {
		r.MacroF1 /= float64(len(labels))
	}
	return r
}

// WriteTo renders the report as an aligned table.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tf1\tsupport\t")
	for _, c := range r.Classes {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(tw, "accuracy\t\t\t%.2f\t\t\n", r.Accuracy)
	fmt.Fprintf(tw, "macro f1\t\t\t%.2f\t\t\n", r.MacroF1)
	tw.Flush()
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}
