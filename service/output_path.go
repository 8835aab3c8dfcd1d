package service

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const batchNumToken = "%batch_num%"

// SavePath 一次保存操作解析出的目录、文件名前缀和计数器
type SavePath struct {
	Dir       string
	Subfolder string
	Filename  string
	Counter   int
}

// ResolveSavePath 解析前缀中的子目录，并在目录中查找下一个可用计数器
func ResolveSavePath(outputDir, prefix string) (SavePath, error) {
	if prefix == "" {
		return SavePath{}, fmt.Errorf("%w: empty filename prefix", ErrInvalidOptions)
	}

	root, err := filepath.Abs(outputDir)
	if err != nil {
		return SavePath{}, err
	}
	subfolder := filepath.Dir(filepath.FromSlash(prefix))
	filename := filepath.Base(filepath.FromSlash(prefix))
	dir := filepath.Join(root, subfolder)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return SavePath{}, fmt.Errorf("%w: prefix %q escapes output directory", ErrInvalidOptions, prefix)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return SavePath{}, err
	}

	counter, err := nextCounter(dir, filename)
	if err != nil {
		return SavePath{}, err
	}

	if subfolder == "." {
		subfolder = ""
	}
	return SavePath{Dir: dir, Subfolder: subfolder, Filename: filename, Counter: counter}, nil
}

// File 生成 name_00001_suffix.ext 形式的完整路径
func (p SavePath) File(batchNum int, suffix, ext string) string {
	name := strings.ReplaceAll(p.Filename, batchNumToken, strconv.Itoa(batchNum))
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%05d_%s.%s", name, p.Counter, suffix, ext))
}

func nextCounter(dir, filename string) (int, error) {
	pattern := regexp.QuoteMeta(filename)
	pattern = strings.ReplaceAll(pattern, regexp.QuoteMeta(batchNumToken), `\d+`)
	re := regexp.MustCompile(`^` + pattern + `_(\d{5,})_`)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, entry := range entries {
		m := re.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
