package snowflake

import (
	"errors"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
	mu   sync.RWMutex

	errInvalidMachineID    = errors.New("invalid snowflake machine id")
	errInvalidDataCenterID = errors.New("invalid snowflake datacenter id")
	errGeneratorUninitial  = errors.New("snowflake generator is not initialized")
)

// Init 初始化节点，datacenterID 和 machineID 都是 0~31，组合成 10 位 node id
func Init(machineID, dataCenterID int64) error {
	var initErr error

	once.Do(func() {
		if machineID < 0 || machineID > 31 {
			initErr = errInvalidMachineID
			return
		}
		if dataCenterID < 0 || dataCenterID > 31 {
			initErr = errInvalidDataCenterID
			return
		}

		n, err := snowflake.NewNode((dataCenterID << 5) | machineID)
		if err != nil {
			initErr = err
			return
		}

		mu.Lock()
		node = n
		mu.Unlock()
	})

	return initErr
}

func NextID() (int64, error) {
	mu.RLock()
	n := node
	mu.RUnlock()

	if n == nil {
		return 0, errGeneratorUninitial
	}

	return n.Generate().Int64(), nil
}

// NextString 生成字符串形式的 id，用作消息 id / correlation id
func NextString() (string, error) {
	id, err := NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}
