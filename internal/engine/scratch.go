package engine

import (
	"os"
	"sync"
)

// Scratch 会话拥有的临时目录（如上传文件所在目录）
// Release 在任意退出路径上只执行一次
type Scratch struct {
	dir  string
	once sync.Once
	err  error
}

// NewScratch 接管已创建的临时目录
func NewScratch(dir string) *Scratch {
	return &Scratch{dir: dir}
}

// Dir 目录路径
func (s *Scratch) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Release 删除目录；nil 安全，重复调用返回首次结果
func (s *Scratch) Release() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		if s.dir != "" {
			s.err = os.RemoveAll(s.dir)
		}
	})
	return s.err
}
