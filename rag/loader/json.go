package loader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BaSui01/askflow/rag"
)

// maxLineBytes JSONL 单行上限, 块文本可能包含整张表格.
const maxLineBytes = 4 << 20

// readJSON 读取 .json 文件: 块数组或单个块对象.
func readJSON(path string) ([]rag.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("json loader: %w", err)
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return []rag.Chunk{}, nil
	}

	if data[0] == '[' {
		var chunks []rag.Chunk
		if err := json.Unmarshal(data, &chunks); err != nil {
			return nil, fmt.Errorf("json loader: parsing array in %s: %w", path, err)
		}
		return chunks, nil
	}

	var c rag.Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("json loader: parsing object in %s: %w", path, err)
	}
	return []rag.Chunk{c}, nil
}

// readJSONL 读取 .jsonl 文件, 每行一个块; 空行跳过.
func readJSONL(ctx context.Context, path string) ([]rag.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jsonl loader: %w", err)
	}
	defer f.Close()
	return decodeJSONL(ctx, f, path)
}

func decodeJSONL(ctx context.Context, r io.Reader, name string) ([]rag.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var chunks []rag.Chunk
	line := 0
	for scanner.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c rag.Chunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("jsonl loader: %s line %d: %w", name, line, err)
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl loader: reading %s: %w", name, err)
	}
	return chunks, nil
}
