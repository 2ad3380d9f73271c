package sources

// Script identifies the entry file that started the program. Args are
// carried for the host and never interpreted here.
type Script struct {
	Path string
	Args []string
}

// Module is one loaded source unit. File is empty when the module has no
// resolvable source file.
type Module struct {
	Name string
	File string
}

// ModuleLister reports the modules currently loaded by the host program.
type ModuleLister interface {
	Modules() ([]Module, error)
}

// ModuleListerFunc adapts a function to the ModuleLister interface.
type ModuleListerFunc func() ([]Module, error)

func (fn ModuleListerFunc) Modules() ([]Module, error) {
	return fn()
}
