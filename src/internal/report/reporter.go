package report

import (
	"fmt"
	"time"
)

type Reporter struct {
	generator Generator
	storage   Storage
}

func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

func (r *Reporter) GenerateAndSave(report *Report) (string, error) {
	// 生成报告内容
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	// 保存报告
	filepath, err := r.storage.Save(report, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return filepath, nil
}

func NewReport(mode string) *Report {
	return &Report{
		Mode:     mode,
		ScanTime: time.Now(),
		PoCs:     make([]PoCResult, 0),
	}
}

func (r *Report) AddPoC(result PoCResult) {
	r.PoCs = append(r.PoCs, result)
	if result.Error != "" {
		r.Failed++
	} else {
		r.Migrated++
	}
}

func (r *Report) AddCandidate(c CandidateResult) {
	r.Candidates = append(r.Candidates, c)
}
